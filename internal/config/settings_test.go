package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, "https://app.slooh.com", s.BaseURL)
	assert.Equal(t, "{object}/{telescope}/{format}", s.FolderTemplate)
	assert.Equal(t, "{telescope}_{filename}", s.FilenameTemplate)
	assert.Equal(t, 50, s.BatchSize)
	assert.Equal(t, 4, s.WorkerCount)
	assert.Equal(t, 30, s.RateLimitPerMin)
	assert.Equal(t, DuplicateSkip, s.HandleDuplicates)
	assert.True(t, s.CheckLedger)
	assert.NoError(t, s.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	s := DefaultSettings()
	s.Username = "astro@example.com"
	s.WorkerCount = 2
	s.HandleDuplicates = DuplicateRename
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"worker_count": 8}`), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, s.WorkerCount)
	assert.Equal(t, 50, s.BatchSize)
	assert.Equal(t, "https://app.slooh.com", s.BaseURL)
}

func TestDurations(t *testing.T) {
	s := DefaultSettings()
	s.TimeoutSeconds = 90
	s.RetryDelaySecs = 1.5

	assert.Equal(t, 90*time.Second, s.Timeout())
	assert.Equal(t, 1500*time.Millisecond, s.RetryDelay())
}

func TestHasCredentials(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.HasCredentials())

	s.Username = "astro@example.com"
	assert.False(t, s.HasCredentials())

	s.Password = "hunter2"
	assert.True(t, s.HasCredentials())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"defaults", func(s *Settings) {}, true},
		{"no base url", func(s *Settings) { s.BaseURL = "" }, false},
		{"zero workers", func(s *Settings) { s.WorkerCount = 0 }, false},
		{"zero batch size", func(s *Settings) { s.BatchSize = 0 }, false},
		{"zero retries", func(s *Settings) { s.MaxRetries = 0 }, false},
		{"bad duplicate policy", func(s *Settings) { s.HandleDuplicates = "explode" }, false},
		{"rename policy", func(s *Settings) { s.HandleDuplicates = DuplicateRename }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
