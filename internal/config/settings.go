package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// DuplicatePolicy controls what happens when a destination file already
// exists: skip it, overwrite it, or write under a "(n)" suffixed name.
type DuplicatePolicy string

const (
	DuplicateSkip      DuplicatePolicy = "skip"
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	DuplicateRename    DuplicatePolicy = "rename"
)

// Settings holds all configuration options.
type Settings struct {
	// Slooh account and endpoint
	Username string `json:"username"`
	Password string `json:"password"`
	BaseURL  string `json:"base_url"`

	// Folder organization
	BasePath         string `json:"base_path"`
	FolderTemplate   string `json:"folder_template"`
	FilenameTemplate string `json:"filename_template"`
	UnknownObject    string `json:"unknown_object"`

	// Download settings
	BatchSize        int             `json:"batch_size"`
	WorkerCount      int             `json:"worker_count"`
	RateLimitPerMin  int             `json:"rate_limit_per_minute"`
	TimeoutSeconds   int             `json:"timeout_seconds"`
	MaxRetries       int             `json:"max_retries"`
	RetryDelaySecs   float64         `json:"retry_delay_seconds"`
	CheckLedger      bool            `json:"check_ledger"`
	HandleDuplicates DuplicatePolicy `json:"handle_duplicates"`
	VerifyHash       bool            `json:"verify_hash"`

	// Tracking
	LedgerFile string `json:"ledger_file"`

	// Logging
	LogFolder string `json:"log_folder"`
	LogLevel  string `json:"log_level"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		BaseURL: "https://app.slooh.com",

		BasePath:         "SloohImages",
		FolderTemplate:   "{object}/{telescope}/{format}",
		FilenameTemplate: "{telescope}_{filename}",
		UnknownObject:    "Unknown",

		BatchSize:        50,
		WorkerCount:      4,
		RateLimitPerMin:  30,
		TimeoutSeconds:   300,
		MaxRetries:       3,
		RetryDelaySecs:   5,
		CheckLedger:      true,
		HandleDuplicates: DuplicateSkip,
		VerifyHash:       false,

		LedgerFile: filepath.Join("data", "download_tracker.json"),

		LogFolder: "logs",
		LogLevel:  "info",
	}
}

// Load reads settings from a JSON file. A missing file is not an error:
// defaults are returned so a first run works without any setup.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	return settings, nil
}

// Save writes settings to a JSON file, creating the parent directory
// if needed.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Timeout returns the HTTP timeout as a duration.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base retry delay as a duration.
func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySecs * float64(time.Second))
}

// HasCredentials reports whether both username and password are set.
func (s *Settings) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// Validate checks option combinations that cannot work at runtime.
func (s *Settings) Validate() error {
	if s.BaseURL == "" {
		return errors.New("base_url must be set")
	}
	if s.WorkerCount < 1 {
		return errors.New("worker_count must be at least 1")
	}
	if s.BatchSize < 1 {
		return errors.New("batch_size must be at least 1")
	}
	if s.MaxRetries < 1 {
		return errors.New("max_retries must be at least 1")
	}
	switch s.HandleDuplicates {
	case DuplicateSkip, DuplicateOverwrite, DuplicateRename:
	default:
		return errors.Newf("unknown handle_duplicates policy %q", s.HandleDuplicates)
	}
	return nil
}
