package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory from the environment or default.
// Priority: MEDIAQUEUE_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("MEDIAQUEUE_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the directory holding the service's databases.
func GetDataDir() string {
	return getDataDir()
}

// RecordsDBPath returns the SQLite file holding media records.
// Path: {dataDir}/records.sqlite
func RecordsDBPath(dataDir string) string {
	return filepath.Join(dataDir, "records.sqlite")
}

// JournalDBPath returns the pebble directory of the submission journal.
// Path: {dataDir}/ConvertQueue.db
func JournalDBPath(dataDir string) string {
	return filepath.Join(dataDir, "ConvertQueue.db")
}

// CredentialsDBPath returns the pebble directory of mirror credentials.
// Path: {dataDir}/credentials.db
func CredentialsDBPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.db")
}

// FailuresDBPath returns the pebble directory of terminal failure records.
// Path: {dataDir}/failures.db
func FailuresDBPath(dataDir string) string {
	return filepath.Join(dataDir, "failures.db")
}

// SuccessDBPath returns the pebble directory of completion records.
// Path: {dataDir}/success.db
func SuccessDBPath(dataDir string) string {
	return filepath.Join(dataDir, "success.db")
}

// GetDirectServeBaseDir returns the base directory for the directServe mirror.
// Configurable via MEDIAQUEUE_SERVE_DIR for server administrators only.
func GetDirectServeBaseDir() string {
	if dir := os.Getenv("MEDIAQUEUE_SERVE_DIR"); dir != "" {
		return dir
	}
	return "./serve"
}
