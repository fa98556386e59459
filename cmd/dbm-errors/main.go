// Command dbm-errors computes projection and inverse projection error maps
// for decision boundary maps, either from a JSON dump of precomputed arrays
// or end to end from a labelled CSV dataset.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/boundarymap/internal/config"
	"github.com/banshee-data/boundarymap/internal/mapstore"
	"github.com/banshee-data/boundarymap/internal/monitoring"
	"github.com/banshee-data/boundarymap/internal/version"
)

// errUsage signals that no input mode was selected.
var errUsage = errors.New("one of -input, -csv, -list or -delete is required")

// Options holds the parsed command line.
type Options struct {
	ConfigPath  string
	Input       string
	CSVPath     string
	TestEvery   int
	Resolution  int
	Neighbors   int
	Workers     int
	DBPath      string
	JSONOut     string
	List        bool
	DeleteRun   string
	Quiet       bool
	ShowVersion bool
}

func parseFlags() Options {
	var o Options
	flag.StringVar(&o.ConfigPath, "config", "", "path to tuning config JSON (default "+config.DefaultConfigPath+" when present)")
	flag.StringVar(&o.Input, "input", "", "JSON dump with points2d, points_nd, labels, resolution and optional grid_nd")
	flag.StringVar(&o.CSVPath, "csv", "", "CSV dataset, last column is the integer class label")
	flag.IntVar(&o.TestEvery, "test-every", 5, "with -csv, every n-th row is held out as test data")
	flag.IntVar(&o.Resolution, "resolution", 0, "override map resolution")
	flag.IntVar(&o.Neighbors, "neighbors", 0, "override trustworthiness neighbourhood size")
	flag.IntVar(&o.Workers, "workers", -1, "override worker bound (0 = one per CPU)")
	flag.StringVar(&o.DBPath, "db", "", "sqlite DB to persist runs into (overrides database_path)")
	flag.StringVar(&o.JSONOut, "json", "", "write the result as JSON to this path, - for stdout")
	flag.BoolVar(&o.List, "list", false, "list stored runs and exit")
	flag.StringVar(&o.DeleteRun, "delete", "", "delete the stored run with this ID and exit")
	flag.BoolVar(&o.Quiet, "quiet", false, "suppress progress logging")
	flag.BoolVar(&o.ShowVersion, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, opts)
	stop()
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts Options) error {
	if opts.ShowVersion {
		fmt.Println("dbm-errors", version.String())
		return nil
	}
	if opts.Quiet {
		monitoring.SetLogger(nil)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyOverrides(cfg, opts.Resolution, opts.Neighbors, opts.Workers, opts.DBPath); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	var store *mapstore.Store
	if path := cfg.GetDatabasePath(); path != "" {
		store, err = mapstore.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}

	if opts.List || opts.DeleteRun != "" {
		if store == nil {
			return errors.New("-list and -delete need -db or database_path")
		}
		if opts.DeleteRun != "" {
			if err := store.DeleteRun(ctx, opts.DeleteRun); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			log.Printf("deleted run %s", opts.DeleteRun)
			return nil
		}
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}
		return printRuns(os.Stdout, runs)
	}

	start := time.Now()
	res, err := compute(ctx, opts, cfg)
	if err != nil {
		return err
	}
	log.Printf("computed %dx%d maps in %s", res.Resolution, res.Resolution, time.Since(start).Round(time.Millisecond))

	if store != nil {
		params, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode parameters: %w", err)
		}
		runID, err := store.SaveMap(ctx, res.Map(), params)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		res.RunID = runID
		log.Printf("saved run %s", runID)
	}

	if opts.JSONOut != "" {
		if err := writeResult(opts.JSONOut, res); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

// loadConfig reads path, or DefaultConfigPath when path is empty and the
// file exists. With neither, built-in defaults apply.
func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyTuningConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadTuningConfig(path)
}

func compute(ctx context.Context, opts Options, cfg *config.TuningConfig) (*Result, error) {
	switch {
	case opts.Input != "" && opts.CSVPath != "":
		return nil, errors.New("-input and -csv are mutually exclusive")
	case opts.Input != "":
		f, err := os.Open(opts.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		dump, err := ReadDump(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		res, err := RunDump(dump, cfg)
		if err != nil {
			return nil, fmt.Errorf("computation failed: %w", err)
		}
		return res, nil
	case opts.CSVPath != "":
		f, err := os.Open(opts.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open csv: %w", err)
		}
		defer f.Close()
		ds, err := ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		res, err := RunDataset(ctx, ds, opts.TestEvery, cfg)
		if err != nil {
			return nil, fmt.Errorf("computation failed: %w", err)
		}
		return res, nil
	}
	return nil, errUsage
}

// applyOverrides copies non-default flag values into cfg and revalidates.
func applyOverrides(cfg *config.TuningConfig, resolution, neighbors, workers int, dbPath string) error {
	if resolution != 0 {
		cfg.Resolution = &resolution
	}
	if neighbors != 0 {
		cfg.NeighborhoodSize = &neighbors
	}
	if workers >= 0 {
		cfg.Workers = &workers
	}
	if dbPath != "" {
		cfg.DatabasePath = &dbPath
	}
	return cfg.Validate()
}

func writeResult(path string, res *Result) error {
	if path == "-" {
		return res.WriteJSON(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := res.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
