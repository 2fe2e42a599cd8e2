// Package index implements the Transaction Index (SPEC_FULL.md §4.11): a
// derived, rebuildable GORM/SQLite mirror of the append-only transaction
// log, answering per-file history and per-session queries (FileHistory,
// Sessions) without a full NDJSON scan; the CLI's history and status
// commands read the log, not the index. It is never authoritative — the log is — and can always be
// reconstructed from it. Grounded on the teacher's GORM-model/glebarez-
// sqlite idiom (models/models.go, db/sqlite.go).
package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oxhq/treeedit/internal/txlog"
)

// TransactionRow is the queryable mirror of one txlog.Transaction.
type TransactionRow struct {
	ID          string `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"index"`
	Operation   string `gorm:"index"`
	FilePath    string `gorm:"index"`
	NodePath    string
	BeforeHash  string
	AfterHash   string
	Description string
	SessionID   string `gorm:"index"`
	Metadata    datatypes.JSON
}

// SessionRow summarizes one session (start, end, transaction count) without
// re-scanning every transaction.
type SessionRow struct {
	SessionID      string `gorm:"primaryKey"`
	StartedAt      time.Time
	EndedAt        *time.Time
	TransactionCount int
}

// Index wraps a GORM/SQLite database file mirroring the transaction log.
type Index struct {
	db *gorm.DB
}

// Open migrates (creating if needed) the SQLite database at dsn.
func Open(dsn string) (*Index, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open transaction index: %w", err)
	}
	if err := db.AutoMigrate(&TransactionRow{}, &SessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate transaction index: %w", err)
	}
	return &Index{db: db}, nil
}

// Record upserts txn into the index and keeps its session's summary row
// current.
func (idx *Index) Record(txn txlog.Transaction) error {
	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}

	row := TransactionRow{
		ID:          txn.ID,
		Timestamp:   txn.Timestamp,
		Operation:   string(txn.Operation),
		FilePath:    txn.FilePath,
		NodePath:    txn.NodePath,
		BeforeHash:  txn.BeforeHash,
		AfterHash:   txn.AfterHash,
		Description: txn.Description,
		SessionID:   txn.SessionID,
		Metadata:    datatypes.JSON(metadata),
	}

	return idx.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save transaction row: %w", err)
		}
		return idx.touchSession(tx, txn)
	})
}

func (idx *Index) touchSession(tx *gorm.DB, txn txlog.Transaction) error {
	var session SessionRow
	err := tx.First(&session, "session_id = ?", txn.SessionID).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		session = SessionRow{
			SessionID:        txn.SessionID,
			StartedAt:        txn.Timestamp,
			TransactionCount: 1,
		}
		if txn.Operation == txlog.OpSessionEnd {
			endedAt := txn.Timestamp
			session.EndedAt = &endedAt
		}
		return tx.Create(&session).Error
	case err != nil:
		return fmt.Errorf("lookup session row: %w", err)
	}

	session.TransactionCount++
	if txn.Operation == txlog.OpSessionEnd {
		endedAt := txn.Timestamp
		session.EndedAt = &endedAt
	}
	return tx.Save(&session).Error
}

// Rebuild truncates both tables and re-derives them from the full
// transaction history, in order, making the index consistent with the log
// again after drift or corruption.
func (idx *Index) Rebuild(history []txlog.Transaction) error {
	return idx.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM transaction_rows").Error; err != nil {
			return fmt.Errorf("truncate transaction rows: %w", err)
		}
		if err := tx.Exec("DELETE FROM session_rows").Error; err != nil {
			return fmt.Errorf("truncate session rows: %w", err)
		}

		rebuilt := &Index{db: tx}
		for _, txn := range history {
			if err := rebuilt.Record(txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// FileHistory returns every indexed transaction for filePath, oldest first.
func (idx *Index) FileHistory(filePath string) ([]TransactionRow, error) {
	var rows []TransactionRow
	err := idx.db.Where("file_path = ?", filePath).Order("timestamp asc").Find(&rows).Error
	return rows, err
}

// Sessions returns every indexed session, most recently started first.
func (idx *Index) Sessions() ([]SessionRow, error) {
	var rows []SessionRow
	err := idx.db.Order("started_at desc").Find(&rows).Error
	return rows, err
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
