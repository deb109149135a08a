// Command pricememory-export writes a backup of the SQLite store to disk
// without starting the web server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pricememory/internal/cli"
	"pricememory/internal/config"
	"pricememory/internal/export"
	"pricememory/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	var (
		formatFlag = flag.String("format", "csv", "backup format: csv, xlsx or all")
		outDir     = flag.String("out", ".", "directory to write the backup into")
		dbPath     = flag.String("db", cfg.SQLiteDBPath, "path to the SQLite database")
	)
	flag.Parse()

	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentExport)

	formats, err := parseFormats(*formatFlag)
	if err != nil {
		logger.Error("Invalid format", log.FieldError, err)
		os.Exit(2)
	}

	repo := cli.InitSQLite(logger, *dbPath)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	purchases, err := repo.List(ctx)
	if err != nil {
		logger.Error("Failed to read purchases", log.FieldError, err, "path", *dbPath)
		os.Exit(1)
	}

	now := time.Now()
	var g errgroup.Group
	for _, f := range formats {
		g.Go(func() error {
			path, err := export.SaveFile(*outDir, f, purchases, now)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			logger.Info("Backup written",
				log.FieldFormat, string(f),
				log.FieldCount, len(purchases),
				"path", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Export failed", log.FieldError, err)
		os.Exit(1)
	}
}

func parseFormats(s string) ([]export.Format, error) {
	if s == "all" {
		return []export.Format{export.FormatCSV, export.FormatXLSX}, nil
	}
	f, err := export.ParseFormat(s)
	if err != nil {
		return nil, err
	}
	return []export.Format{f}, nil
}
