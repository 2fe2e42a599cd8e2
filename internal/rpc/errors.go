package rpc

import "fmt"

// Error codes follow the JSON-RPC 2.0 standard plus this server's domain
// extensions.
const (
	// JSON-RPC 2.0 standard error codes.
	ParseError     = -32700 // Invalid JSON was received.
	InvalidRequest = -32600 // The JSON sent is not a valid Request object.
	MethodNotFound = -32601 // The method does not exist.
	InvalidParams  = -32602 // Invalid method parameters.
	InternalError  = -32603 // Internal JSON-RPC error.

	// Domain error codes.
	Unauthorized     = -32001 // Missing or incorrect bearer token.
	NodeNotFound     = 20001  // node_path/parent_path does not resolve.
	InvalidPosition  = 20002  // Insert position outside {0,1,2}.
	SourceParseError = 20003  // Parser could not produce a valid tree.
	ValidationFailed = 20004  // Batch preview op produced an unparseable intermediate.
	BatchAborted     = 20005  // Batch write failed mid-apply; rollback attempted.
)

// ErrorObject already implements the error interface so it can be returned
// and wrapped like any other Go error, in addition to marshaling as a
// response's error object.
func (e *ErrorObject) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// NewError creates a new RPC error with optional data.
func NewError(code int, message string, data ...any) *ErrorObject {
	err := &ErrorObject{Code: code, Message: message}
	if len(data) > 0 {
		err.Data = data[0]
	}
	return err
}

// WrapError wraps a regular error into an RPC error.
func WrapError(code int, message string, err error) *ErrorObject {
	if err == nil {
		return NewError(code, message)
	}
	return NewError(code, message, err.Error())
}

// ErrorResponseWithData builds a JSON-RPC error response carrying extra data.
func ErrorResponseWithData(id any, code int, message string, data any) Response {
	resp := ErrorResponse(id, code, message)
	if resp.Error != nil {
		resp.Error.Data = data
	}
	return resp
}
