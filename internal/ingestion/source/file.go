package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

// FileSource reads the results list and the cache object from JSON files.
// A missing file, or one whose top-level shape is wrong, counts as absent.
type FileSource struct {
	resultsPath string
	cachePath   string
	logger      *slog.Logger

	usedResults bool
	usedCache   bool
}

// NewFileSource creates a FileSource. Either path may be empty.
func NewFileSource(resultsPath, cachePath string) *FileSource {
	return &FileSource{
		resultsPath: resultsPath,
		cachePath:   cachePath,
		logger:      slog.Default().With("component", "file-source"),
	}
}

func (s *FileSource) Primary(ctx context.Context) ([]ingestion.Record, error) {
	data, err := readOptional(s.resultsPath)
	if err != nil || data == nil {
		return nil, err
	}
	records, ok := decodePrimary(data, s.logger)
	if !ok {
		s.logger.Warn("results file is not a JSON array, ignoring", "path", s.resultsPath)
		return nil, nil
	}
	s.usedResults = true
	s.logger.Info("results file loaded", "path", s.resultsPath, "records", len(records))
	return records, nil
}

func (s *FileSource) Cache(ctx context.Context) ([]CacheItem, error) {
	data, err := readOptional(s.cachePath)
	if err != nil || data == nil {
		return nil, err
	}
	items, ok := decodeCache(data, s.logger)
	if !ok {
		s.logger.Warn("cache file is not a JSON object, ignoring", "path", s.cachePath)
		return nil, nil
	}
	s.usedCache = true
	s.logger.Info("cache file loaded", "path", s.cachePath, "entries", len(items))
	return items, nil
}

// Describe lists the files that contributed data, joined by " + ".
func (s *FileSource) Describe() string {
	parts := make([]string, 0, 2)
	if s.usedResults {
		parts = append(parts, s.resultsPath)
	}
	if s.usedCache {
		parts = append(parts, s.cachePath)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " + ")
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
