// Package catalog discovers the models available under a model directory.
// Every immediate subdirectory is a candidate model; files are ignored.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"diffuser/logger"
)

var (
	ErrNoAccess     = errors.New("could not get subdirectories")
	ErrEmptyCatalog = errors.New("no models found")
)

// DefaultDir resolves the application-data model directory used when none is
// configured. It is a variable so tests can redirect it.
var DefaultDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Documents", "diffuser", "models"), nil
}

// Resolve returns the directory Discover would list for modelDir, creating
// the default directory when modelDir is empty.
func Resolve(modelDir string) (string, error) {
	if modelDir != "" {
		return modelDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("%w: couldn't access model directory: %v", ErrNoAccess, err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Info("Creating models directory", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("Could not create models directory", "dir", dir, "error", err)
		}
	}
	return dir, nil
}

// Discover lists the model identifiers under modelDir in name order.
func Discover(modelDir string) ([]string, error) {
	dir, err := Resolve(modelDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Started loading model directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Could not get subdirectories", "dir", dir, "error", err)
		return nil, fmt.Errorf("%w under %s", ErrNoAccess, dir)
	}

	var models []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if isDir(dir, entry) {
			models = append(models, entry.Name())
		}
	}

	if len(models) == 0 {
		logger.Warn("No models found", "dir", dir)
		return nil, fmt.Errorf("%w under %s", ErrEmptyCatalog, dir)
	}
	sort.Strings(models)

	logger.Info("Found models", "count", len(models))
	return models, nil
}

// Exists reports whether name is a model directory under modelDir.
func Exists(modelDir, name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return false
	}
	info, err := os.Stat(filepath.Join(modelDir, name))
	return err == nil && info.IsDir()
}

// isDir follows symlinks so linked model folders are listed too.
func isDir(dir string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.IsDir()
}
