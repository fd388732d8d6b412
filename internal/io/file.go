// Package ioutils provides file system utilities for the slooh-downloader.
//
// This package contains functions for:
//   - Filename sanitization
//   - Directory creation
//   - Content hashing
//   - Collision-free path generation
package ioutils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// SanitizeFileName removes or replaces characters that are invalid in
// file/folder names.
//
// This function ensures names are valid across different operating
// systems, particularly Windows which has the most restrictive rules.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Multiple whitespace → single space
//   - Leading/trailing dots and spaces → removed
//
// Example:
//
//	safe := ioutils.SanitizeFileName("Trifid Nebula (M20): v2") // "Trifid Nebula (M20)_ v2"
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.Trim(name, ". ")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileMD5 computes the MD5 hash of a file's contents as a lowercase hex
// string.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UniquePath returns path unchanged when nothing exists there, otherwise
// the first "name (n).ext" variant that is free.
//
// Example:
//
//	p := ioutils.UniquePath("/images/m42.png") // "/images/m42 (1).png" if taken
func UniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, n, ext))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
