package fileutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxTempAttempts = 64

// ListMatching returns the names of regular entries in dir whose name
// contains marker, in directory enumeration order. Subdirectories are skipped.
// An empty marker matches every entry.
func ListMatching(dir, marker string) ([]string, error) {
	handle, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	// (*os.File).ReadDir keeps enumeration order; os.ReadDir would sort.
	entries, err := handle.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.Contains(entry.Name(), marker) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// WriteFileAtomic writes data to a hidden temp file beside path and renames it
// into place, so readers of the directory never observe a partial file. The
// temp name is guaranteed not to contain avoid, letting scanners that filter
// by substring skip in-flight writes.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, avoid string) error {
	dir := filepath.Dir(path)
	tmpPath, err := reserveTempName(dir, avoid)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func reserveTempName(dir, avoid string) (string, error) {
	prefix := ".partial-"
	if avoid != "" && strings.Contains(prefix, avoid) {
		prefix = "~"
	}
	for range maxTempAttempts {
		var raw [6]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return "", fmt.Errorf("temp name: %w", err)
		}
		name := prefix + hex.EncodeToString(raw[:])
		if avoid != "" && strings.Contains(name, avoid) {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("temp name: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("temp name: no candidate avoiding %q in %s", avoid, dir)
}
