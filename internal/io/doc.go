// Package ioutils provides file system utilities shared by the download
// pipeline.
//
// # Filename Sanitization
//
// Use SanitizeFileName to remove invalid characters from filenames:
//
//	safe := ioutils.SanitizeFileName("NGC 7000: wide field") // "NGC 7000_ wide field"
//
// # Directories and Paths
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/images/M42/Canary One")
//
//	// Find a collision-free path for a duplicate
//	p := ioutils.UniquePath("/images/m42.png")
//
// # Hashing
//
//	sum, err := ioutils.FileMD5("/images/m42.png")
package ioutils
