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

package status

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/dataset"
)

// Finalizer persists status reports. It wraps each report as a one-row
// dataset and appends it to the status-log target through the same storage
// collaborator module data goes through.
//
// Finalize is append-only and not guarded against double invocation for
// the same run; calling it twice per run is a caller defect.
type Finalizer interface {
	Finalize(ctx context.Context, report *Report) error
}

// LogFinalizer is the production Finalizer backed by a StorageClient.
type LogFinalizer struct {
	db     core.StorageClient
	target *core.Target
	logger *zap.Logger
}

// NewLogFinalizer creates a finalizer appending to the fixed status log.
func NewLogFinalizer(db core.StorageClient, logger *zap.Logger) *LogFinalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogFinalizer{
		db:     db,
		target: LogTarget(),
		logger: logger,
	}
}

// Finalize appends the report to the status log.
func (f *LogFinalizer) Finalize(ctx context.Context, report *Report) error {
	row := dataset.FromRecords([]core.Record{report.ToRecord()})

	ok, err := f.db.Write(ctx, row, f.target)
	if err != nil {
		return errors.Wrapf(err, "finalize module %d run %s", report.ModuleID, report.RunID)
	}
	if !ok {
		return errors.Newf("finalize module %d run %s: status log write unsuccessful", report.ModuleID, report.RunID)
	}

	f.logger.Info("finalized module run",
		zap.Int("module_id", report.ModuleID),
		zap.String("module_name", report.ModuleName),
		zap.String("run_id", report.RunID),
		zap.String("status", report.Status),
		zap.Int64("records_appended", report.RecordsAppended))

	return nil
}
