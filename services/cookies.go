package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidCookies is returned for uploads that are not a Netscape cookie file
var ErrInvalidCookies = errors.New("invalid cookie file")

// CookieStore manages the Netscape cookies.txt handed to yt-dlp
type CookieStore struct {
	path string
}

// NewCookieStore creates a store for the cookie file at path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Path returns the cookie file location, or "" when none is configured
func (s *CookieStore) Path() string {
	return s.path
}

// Configured reports whether a cookie file is present on disk
func (s *CookieStore) Configured() bool {
	if s.path == "" {
		return false
	}
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Count returns the number of cookie entries in the stored file
func (s *CookieStore) Count() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return countCookieEntries(string(data)), nil
}

// Save validates content and replaces the cookie file with it
func (s *CookieStore) Save(content string) error {
	if s.path == "" {
		return fmt.Errorf("%w: no cookie file configured", ErrInvalidCookies)
	}
	if err := ValidateNetscapeCookies(content); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cookies-*")
	if err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

// Delete removes the cookie file. A missing file is not an error.
func (s *CookieStore) Delete() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cookie file: %w", err)
	}
	return nil
}

// ValidateNetscapeCookies checks that content looks like a cookies.txt export:
// the first line is a comment or a domain entry.
func ValidateNetscapeCookies(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: cookie file is empty", ErrInvalidCookies)
	}
	first, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(first, "#") && !strings.HasPrefix(first, ".") {
		return fmt.Errorf("%w: expected Netscape format starting with '# Netscape HTTP Cookie File' or a domain entry", ErrInvalidCookies)
	}
	return nil
}

// countCookieEntries counts tab-separated lines with the seven Netscape fields
func countCookieEntries(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_")) {
			continue
		}
		if len(strings.Split(line, "\t")) >= 7 {
			n++
		}
	}
	return n
}
