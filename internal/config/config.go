// Package config loads process configuration from environment variables,
// optionally seeded from a ".env" file in the project root. Grounded on the
// teacher's cmd/morfx and demo entrypoints, which load godotenv before
// reading flags.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const envPrefix = "TREEEDIT_"

// Config holds every setting the CLI and RPC server read from the
// environment.
type Config struct {
	ProjectRoot string
	RPCAddr     string
	RPCToken    string
	IndexDSN    string
	Debug       bool
}

// Load reads "<projectRoot>/.env" if present, then builds a Config from
// TREEEDIT_* environment variables, falling back to sane defaults.
func Load(projectRoot string) (Config, error) {
	envPath := filepath.Join(projectRoot, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		ProjectRoot: getEnv("PROJECT_ROOT", projectRoot),
		RPCAddr:     getEnv("RPC_ADDR", "127.0.0.1:7475"),
		RPCToken:    getEnv("RPC_TOKEN", ""),
		IndexDSN:    getEnv("INDEX_DSN", filepath.Join(projectRoot, ".tree_index.db")),
		Debug:       getEnvBool("DEBUG", false),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
