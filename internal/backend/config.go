package backend

import (
	"fmt"

	"spendly/internal/config"
	"spendly/internal/googleauth"
)

// Config holds configuration for backend creation
type Config struct {
	Type           BackendType
	SQLiteDBPath   string
	RequireIndexes bool

	Blobs         BlobType
	BlobDir       string
	BlobBaseURL   string
	DriveFolderID string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	SpreadsheetID string
	SheetName     string
	Google        googleauth.Credentials
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:           BackendType(appConfig.DataBackend),
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		RequireIndexes: appConfig.RequireIndexes,

		Blobs:         BlobType(appConfig.BlobBackend),
		BlobDir:       appConfig.BlobDir,
		BlobBaseURL:   appConfig.BlobBaseURL,
		DriveFolderID: appConfig.GoogleDriveFolderID,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		SpreadsheetID: appConfig.GoogleSpreadsheetID,
		SheetName:     appConfig.GoogleSheetName,
		Google:        appConfig.Google,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.Blobs != "" && !c.Blobs.IsValid() {
		return fmt.Errorf("invalid blob backend: %s", c.Blobs)
	}
	if c.Blobs == DriveBlobs && c.DriveFolderID == "" {
		return fmt.Errorf("Drive folder ID is required for drive blob backend")
	}
	return nil
}
