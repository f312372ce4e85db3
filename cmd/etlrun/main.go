//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2026 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of ETLRun.
//
// ETLRun is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ETLRun is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ETLRun. If not, see https://www.gnu.org/licenses/.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun"
	"github.com/aaronlmathis/etlrun/config"
	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/dataset"
	"github.com/aaronlmathis/etlrun/schema"
	"github.com/aaronlmathis/etlrun/sources"
	"github.com/aaronlmathis/etlrun/status"
	"github.com/aaronlmathis/etlrun/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "etlrun",
		Short:        "Incremental ETL module runner",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "etlrun.yaml", "path to pipeline configuration")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Execute every configured module for its incremental window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, dialect, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := storage.NewSQLClient(db, dialect, logger, storage.WithTransactions(true))
	if err := client.EnsureStatusLog(ctx); err != nil {
		return err
	}

	optimizer := storage.NewSQLOptimizer(db, dialect, logger)
	history := storage.NewHistory(db, dialect)
	scheduler := etlrun.NewOptimizeScheduler(cfg, history)
	finalizer := status.NewLogFinalizer(client, logger)

	registry := schema.NewRegistry()
	for _, mw := range cfg.Modules() {
		registry.Register(mw.ID, schema.Require(mw.RequiredColumns...))
	}

	var failed int
	for _, mw := range cfg.Modules() {
		report, err := runModule(ctx, cfg, logger, client, optimizer, scheduler, finalizer, registry, mw)
		if err != nil {
			return err
		}
		if report.Status != status.Success && report.Status != status.Empty {
			failed++
		}
	}

	if err := optimizer.Optimize(ctx); err != nil {
		return err
	}

	if failed > 0 {
		return errors.Newf("%d modules failed", failed)
	}
	return nil
}

func runModule(ctx context.Context, cfg *config.PipelineConfig, logger *zap.Logger,
	client core.StorageClient, optimizer core.Optimizer, scheduler *etlrun.OptimizeScheduler,
	finalizer status.Finalizer, registry *schema.Registry, mw config.ModuleWindow) (*status.Report, error) {

	module := &core.Module{ID: mw.ID, Name: mw.Name}
	target := targetOf(mw)

	ec := etlrun.NewExecContext(logger, cfg)
	failure := etlrun.NewFailureHandler(ec, client, scheduler, finalizer)
	empty := etlrun.NewEmptyInputHandler(ec, scheduler, finalizer)
	writer := etlrun.NewAppendWriter(ec, client, optimizer, scheduler, failure, finalizer)

	source, err := openSource(ctx, mw)
	if err != nil {
		return nil, errors.Wrapf(err, "open source for module %d", mw.ID)
	}

	def, err := etlrun.NewDefinition(ec).
		From(source).
		ForModule(module).
		To(target).
		WriteWith(writer.WriteTo(target)).
		WithSchemaRegistry(registry).
		OnEmpty(empty).
		OnFailure(failure).
		Build()
	if err != nil {
		return nil, errors.Wrapf(err, "build definition for module %d", mw.ID)
	}

	report, err := def.Process(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "process module %d", mw.ID)
	}

	fmt.Printf("module %d (%s): %s, %d records\n", mw.ID, mw.Name, report.Status, report.RecordsAppended)
	return report, nil
}

func newLogger(cfg *config.PipelineConfig) (*zap.Logger, error) {
	if cfg.IsLocalTesting() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStorage(cfg *config.PipelineConfig) (*sql.DB, storage.Dialect, error) {
	switch cfg.StorageDriver() {
	case "sqlite":
		db, err := storage.OpenSQLite(cfg.StorageDSN())
		return db, storage.DialectSQLite, err
	case "postgres":
		db, err := storage.OpenPostgres(cfg.StorageDSN())
		return db, storage.DialectPostgres, err
	default:
		return nil, 0, errors.Newf("unsupported storage driver %q", cfg.StorageDriver())
	}
}

func targetOf(mw config.ModuleWindow) *core.Target {
	policy := core.CountPolicyDirect
	if mw.CountPolicy == "target_scan" {
		policy = core.CountPolicyTargetScan
	}
	frequency := core.FrequencyDaily
	if mw.Frequency != "" {
		frequency = core.DataFrequency(mw.Frequency)
	}
	return &core.Target{
		Table:              mw.Table,
		PrimaryKeys:        mw.PrimaryKeys,
		IncrementalColumns: mw.IncrementalColumns,
		Frequency:          frequency,
		CountPolicy:        policy,
	}
}

// openSource builds the module's windowed source dataset. File-backed
// sources stream; all of them bound the pull to the module's incremental
// window.
func openSource(ctx context.Context, mw config.ModuleWindow) (core.Dataset, error) {
	window := sources.WindowOf(mw.From, mw.Until)

	switch mw.Source.Type {
	case "csv":
		f, err := os.Open(mw.Source.Path)
		if err != nil {
			return nil, err
		}
		src, err := sources.NewCSVSource(f, sources.WithCSVWindow(window, mw.Source.Watermark))
		if err != nil {
			f.Close()
			return nil, err
		}
		return dataset.NewStream(src), nil
	case "json":
		f, err := os.Open(mw.Source.Path)
		if err != nil {
			return nil, err
		}
		return dataset.NewStream(sources.NewJSONSource(f, sources.WithJSONWindow(window, mw.Source.Watermark))), nil
	case "s3":
		src, err := sources.NewS3Source(ctx,
			sources.WithS3Bucket(mw.Source.Bucket),
			sources.WithS3Prefix(mw.Source.Prefix),
			sources.WithS3Region(mw.Source.Region),
			sources.WithS3Window(window, mw.Source.Watermark),
		)
		if err != nil {
			return nil, err
		}
		return dataset.NewStream(src), nil
	case "mongo":
		src, err := sources.NewMongoSource(
			sources.WithMongoURI(mw.Source.URI),
			sources.WithMongoDB(mw.Source.Database),
			sources.WithMongoCollection(mw.Source.Collection),
			sources.WithMongoWindow(window, mw.Source.Watermark),
		)
		if err != nil {
			return nil, err
		}
		return dataset.NewStream(src), nil
	case "parquet":
		src, err := sources.NewParquetSource(mw.Source.Path,
			sources.WithParquetWindow(window, mw.Source.Watermark))
		if err != nil {
			return nil, err
		}
		return dataset.NewStream(src), nil
	default:
		return nil, errors.Newf("unsupported source type %q for module %d", mw.Source.Type, mw.ID)
	}
}
