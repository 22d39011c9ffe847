package output

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

const (
	// SeriesFileName is the nested per-attraction export.
	SeriesFileName = "waiting_times.json"
	// DataDirName holds the date-stamped flat exports.
	DataDirName = "data"
)

// ErrFilesystem marks directory and file write failures.
var ErrFilesystem = errors.New("filesystem error")

// Paths resolves export file locations under a base directory.
type Paths struct {
	BaseDir string
}

// SeriesFile returns the fixed path of the nested export.
func (p Paths) SeriesFile() string {
	return filepath.Join(p.BaseDir, SeriesFileName)
}

// DataDir returns the directory of the flat exports.
func (p Paths) DataDir() string {
	return filepath.Join(p.BaseDir, DataDirName)
}

// FlatFile returns data/waiting_times_YYYYMMDD.json for date.
func (p Paths) FlatFile(date time.Time) string {
	return filepath.Join(p.DataDir(), fmt.Sprintf("waiting_times_%s.json", date.Format("20060102")))
}

// Encode renders v as two-space indented JSON without HTML or non-ASCII
// escaping, followed by a newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON encodes v and replaces path atomically, creating the parent
// directory if needed.
func WriteJSON(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrFilesystem, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrFilesystem, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrFilesystem, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrFilesystem, path, err)
	}
	return nil
}
