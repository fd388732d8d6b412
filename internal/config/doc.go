// Package config provides configuration management for slooh-downloader.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - Validation of option combinations
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Downloads to SloohImages/{object}/{telescope}/{format}
//	// 4 workers, 30 requests/minute, 3 retry attempts
//
// # Loading from File
//
//	settings, err := config.Load("config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Configuration Options
//
// Settings includes options for:
//   - Slooh credentials and API endpoint
//   - Folder and filename templates
//   - Worker count, batch size and rate limit
//   - Retry behavior and per-request timeout
//   - Ledger location and dedup behavior
//   - Hash verification and duplicate handling
package config
