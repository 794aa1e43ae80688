package backend

import (
	"errors"
	"fmt"

	"feeledger/internal/config"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	c := Config{
		Storage:       StorageType(appConfig.DataBackend),
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDir,

		Register:                 RegisterType(appConfig.RegisterBackend),
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the fields the selected backends need.
func (c Config) Validate() error {
	if !c.Storage.IsValid() {
		return fmt.Errorf("invalid storage backend: %q", c.Storage)
	}
	if c.Storage == SQLiteStorage && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}

	// an empty register type means the process does not write the register
	if c.Register == "" {
		return nil
	}
	if !c.Register.IsValid() {
		return fmt.Errorf("invalid register backend: %q", c.Register)
	}
	if c.Register == GoogleRegister {
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for google register")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			return errors.New("either a service account file or inline JSON must be provided for google register")
		}
	}
	return nil
}
