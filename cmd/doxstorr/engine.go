package main

import (
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	doxstorr "github.com/ha1tch/doxstorr"
	"github.com/ha1tch/doxstorr/internal/index"
)

var errMissingDataDir = errors.New("--data-dir is required (or set DOXSTORR_DATA_DIR / data-dir in the config file)")

func newLogger() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	var logger zerolog.Logger
	if v.GetBool("log-json") {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(w)
	}
	logger = logger.With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func openEngine() (*doxstorr.Engine, error) {
	dataDir, err := requiredDataDir()
	if err != nil {
		return nil, err
	}

	workers := v.GetInt("block-workers")
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	cfg := doxstorr.Config{
		DataDir:            dataDir,
		CacheCapacity:      v.GetInt("cache-capacity"),
		BlockWorkers:       workers,
		IndexConfig:        index.Config{EnableRefIndexing: true, EnableUsageStatistics: true},
		TransactionTimeout: 5 * time.Second,
		Logger:             newLogger(),
	}
	return doxstorr.Open(cfg)
}
