package source

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
)

// Open returns the source named by cfg: the SQL table when a driver is set,
// the JSON files otherwise. The returned close function is never nil.
func Open(ctx context.Context, cfg config.DataConfig) (Source, func() error, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		return NewFileSource(cfg.ResultsFile, cfg.CacheFile), func() error { return nil }, nil
	}
	src, err := OpenSQL(ctx, driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}
