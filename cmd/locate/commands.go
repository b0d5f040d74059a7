package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/geocoder"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/logger"
)

var (
	cfgFile     string
	resultsFile string
	cacheFile   string
	logLevel    string
	useGeocoder bool

	strictLookup bool
	pageLimit    int
	pageOffset   int

	placeName    string
	placeFull    string
	placeTypes   []string
	placeRegion  string
	placeCountry string
	placeStrict  bool
)

var rootCmd = &cobra.Command{
	Use:           "locate",
	Short:         "Query geocoded prediction markets by location",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logger.ParseLevel(logLevel); err != nil {
			return err
		}
		logger.Setup(logLevel, "text")
		return nil
	},
}

var byLocationCmd = &cobra.Command{
	Use:   "by-location <location>",
	Short: "Exact lookup with optional loose fallback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		location := strings.TrimSpace(args[0])
		if location == "" {
			return errors.New("location is required")
		}
		strict := strictLookup || strings.Contains(location, ",")
		res := engine.SearchByLocation(cmd.Context(), location, strict)
		page, hasMore := merger.Paginate(res.Rows, pageOffset, pageLimit)
		return printJSON(map[string]any{
			"location":            location,
			"normalized_location": res.Normalized,
			"mode":                res.Mode,
			"strict":              res.Strict,
			"used_variants":       res.Variants,
			"count":               len(res.Rows),
			"has_more":            hasMore,
			"results":             questionsOf(page),
		})
	},
}

var marketsCmd = &cobra.Command{
	Use:   "markets <query>",
	Short: "Loose lookup, widened through the geocoder when enabled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		res := engine.SearchByLooseQuery(cmd.Context(), strings.TrimSpace(args[0]))
		return printJSON(map[string]any{
			"query":          res.Query,
			"count":          len(res.Rows),
			"used_variants":  res.Variants,
			"resolved_place": res.ResolvedPlace(),
			"geocoder":       res.Resolution.Outcome(),
			"results":        questionsOf(res.Rows),
		})
	},
}

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Scoped lookup of a map place",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(placeName) == "" && strings.TrimSpace(placeFull) == "" {
			return errors.New("--name or --place-name is required")
		}
		engine, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		res := engine.SearchByPlace(cmd.Context(), executor.PlaceQuery{
			Name:         placeName,
			PlaceName:    placeFull,
			PlaceTypes:   placeTypes,
			Region:       placeRegion,
			Country:      placeCountry,
			StrictIntent: placeStrict,
		})
		return printJSON(map[string]any{
			"matched_scope": res.Scope,
			"used_variants": res.Variants,
			"count":         len(res.Rows),
			"results":       questionsOf(res.Rows),
		})
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens <location>",
	Short: "Print the index tokens a location name produces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(tokenizer.Default().Build(args[0]))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&resultsFile, "results", "", "results file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cacheFile, "cache", "", "cache file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().BoolVar(&useGeocoder, "geocode", false, "resolve loose queries through the geocoder")

	byLocationCmd.Flags().BoolVar(&strictLookup, "strict", true, "exact matching only")
	byLocationCmd.Flags().IntVar(&pageLimit, "limit", 100, "page size")
	byLocationCmd.Flags().IntVar(&pageOffset, "offset", 0, "page offset")

	placeCmd.Flags().StringVar(&placeName, "name", "", "place name")
	placeCmd.Flags().StringVar(&placeFull, "place-name", "", "formatted place name")
	placeCmd.Flags().StringSliceVar(&placeTypes, "type", nil, "place types (poi, place, region, country)")
	placeCmd.Flags().StringVar(&placeRegion, "region", "", "region of the place")
	placeCmd.Flags().StringVar(&placeCountry, "country", "", "country of the place")
	placeCmd.Flags().BoolVar(&placeStrict, "strict-intent", true, "never fall back to loose matching")

	rootCmd.AddCommand(byLocationCmd, marketsCmd, placeCmd, tokensCmd)
}

func openEngine(ctx context.Context) (*executor.Engine, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if resultsFile != "" {
		cfg.Data.ResultsFile = resultsFile
	}
	if cacheFile != "" {
		cfg.Data.CacheFile = cacheFile
	}
	if pageLimit < 1 || pageLimit > cfg.Search.MaxLimit || pageOffset < 0 {
		return nil, fmt.Errorf("limit must be between 1 and %d and offset non-negative", cfg.Search.MaxLimit)
	}

	src, closeSource, err := source.Open(ctx, cfg.Data)
	if err != nil {
		return nil, err
	}
	defer closeSource()
	loaded, err := loader.New(src).Load(ctx)
	if err != nil {
		return nil, err
	}

	builder := tokenizer.Default()
	var opts []executor.Option
	if useGeocoder {
		if geo := geocoder.New(cfg.Geocoder, builder); geo.Enabled() {
			opts = append(opts, executor.WithResolver(geo))
		}
	}
	return executor.New(index.Build(loaded.Records, builder), opts...), nil
}

func questionsOf(rows []index.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"question":   r.Question,
			"matched_on": r.MatchedOn,
		})
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
