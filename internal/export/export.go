package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mspro-labs/map-extractor/internal/models"
)

var logger = log.New(os.Stdout, "EXPORT: ", log.LstdFlags|log.Lshortfile)

// Header is the fixed CSV column order.
var Header = []string{"Name", "Phone", "Category", "Address", "Reviews", "Rating"}

// maxSuffix bounds the numbered names UniqueFilename tries.
const maxSuffix = 10000

// ErrNoFreeName is returned when every numbered name up to maxSuffix is taken.
var ErrNoFreeName = errors.New("no free file name")

// UniqueFilename returns dir/base when that path is free, otherwise the first
// free dir/<name>N<ext> counting up from 1. Any stat error other than "not
// found" is returned, since it says nothing about whether the name is free.
func UniqueFilename(dir, base string) (string, error) {
	path := filepath.Join(dir, base)
	taken, err := exists(path)
	if err != nil || !taken {
		return path, err
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	for n := 1; n <= maxSuffix; n++ {
		path = filepath.Join(dir, name+strconv.Itoa(n)+ext)
		taken, err := exists(path)
		if err != nil || !taken {
			return path, err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFreeName, filepath.Join(dir, base))
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// WriteCSV writes the header followed by one row per listing.
func WriteCSV(w io.Writer, listings []models.Listing) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range listings {
		row := []string{l.Name, l.Phone, l.Category, l.Address, l.Reviews, l.Rating}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save writes listings to a new file in dir named after base and returns its
// path. An existing file is never overwritten.
func Save(dir, base string, listings []models.Listing) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		file *os.File
		path string
		err  error
	)
	// A file can appear between the name check and the create; pick again.
	for range 5 {
		path, err = UniqueFilename(dir, base)
		if err != nil {
			return "", fmt.Errorf("failed to pick a file name: %w", err)
		}
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(file, listings); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}

	logger.Printf("Wrote %d listings to %s", len(listings), path)
	return path, nil
}
