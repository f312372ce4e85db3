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

package etlrun

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// shufflePartitionsKey is the session override consulted when re-balancing
// the dataset ahead of the write.
const shufflePartitionsKey = "shuffle.partitions"

// AppendWriter writes a validated, transformed dataset to its target,
// counts the appended records, schedules optimization when due, and
// produces the SUCCESS report. Any failure inside the write path routes to
// the FailureHandler; this is the sole path to FAILED reports, and no
// partial SUCCESS report is ever produced once a failure is caught.
type AppendWriter struct {
	ec        *ExecContext
	db        core.StorageClient
	optimizer core.Optimizer
	scheduler *OptimizeScheduler
	failure   *FailureHandler
	finalizer status.Finalizer
	now       func() time.Time
}

// NewAppendWriter creates an append writer.
func NewAppendWriter(ec *ExecContext, db core.StorageClient, optimizer core.Optimizer, scheduler *OptimizeScheduler, failure *FailureHandler, finalizer status.Finalizer) *AppendWriter {
	return &AppendWriter{
		ec:        ec,
		db:        db,
		optimizer: optimizer,
		scheduler: scheduler,
		failure:   failure,
		finalizer: finalizer,
		now:       time.Now,
	}
}

// WriteTo returns a WriteFunc bound to the target, for use as the write
// step of an EtlDefinition.
func (w *AppendWriter) WriteTo(target *core.Target) WriteFunc {
	return func(ctx context.Context, ds core.Dataset, module *core.Module) (*status.Report, error) {
		return w.Append(ctx, ds, module, target)
	}
}

// Append runs the write path for one module. Session overrides applied for
// the run are restored to their pre-run values only after the write path
// has fully succeeded; a failed run leaves them for the surrounding
// pipeline to reset.
func (w *AppendWriter) Append(ctx context.Context, ds core.Dataset, module *core.Module, target *core.Target) (*status.Report, error) {
	cfg := w.ec.Config
	fromTS := cfg.FromTime(module.ID).UnixMilli()
	untilTS := cfg.UntilTime(module.ID).UnixMilli()
	runStart := w.now().UnixMilli()

	snapshot := w.ec.Session.Apply(cfg.SessionOverrides())

	count, lastOptimized, err := w.write(ctx, ds, module, target, fromTS, untilTS)
	if err != nil {
		w.ec.Logger.Error("append to target failed",
			zap.String("table", target.Table),
			zap.Int("module_id", module.ID),
			zap.Error(err))
		return w.failure.FailModule(ctx, module, target, err.Error())
	}

	w.ec.Session.Restore(snapshot)

	report := &status.Report{
		OrganizationID:       cfg.OrganizationID(),
		RunID:                w.ec.RunID,
		ModuleID:             module.ID,
		ModuleName:           module.Name,
		PrimordialDate:       cfg.PrimordialDate(),
		RunStartTS:           runStart,
		RunEndTS:             w.now().UnixMilli(),
		FromTS:               fromTS,
		UntilTS:              untilTS,
		DataFrequency:        target.Frequency,
		Status:               status.Success,
		RecordsAppended:      count,
		LastOptimizedTS:      lastOptimized,
		VacuumRetentionHours: cfg.VacuumRetentionHours(),
		InputConfig:          cfg.InputConfig(),
		ParsedConfig:         cfg.ParsedConfig(),
	}

	if err := w.finalizer.Finalize(ctx, report); err != nil {
		return nil, errors.Wrap(err, "persist SUCCESS report")
	}

	return report, nil
}

// write performs the re-balance, write, count, and optimize steps. Any
// error is fatal for the run and routes to the failure handler.
func (w *AppendWriter) write(ctx context.Context, ds core.Dataset, module *core.Module, target *core.Target, fromTS, untilTS int64) (count, lastOptimized int64, err error) {
	observed, known := w.ec.SourcePartitions()
	partitions := sizeShufflePartitions(observed, known, w.ec.Session)
	ds = ds.Repartition(partitions)

	ok, err := w.db.Write(ctx, ds, target)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "write to %s", target.Table)
	}
	if !ok {
		return 0, 0, errors.Newf("write to %s reported unsuccessful", target.Table)
	}

	switch target.CountPolicy {
	case core.CountPolicyTargetScan:
		count, err = w.db.CountWindow(ctx, target, fromTS, untilTS)
	default:
		count, err = ds.Count(ctx)
	}
	if err != nil {
		return 0, 0, errors.Wrapf(err, "count records appended to %s", target.Table)
	}

	due, err := w.scheduler.NeedsOptimize(ctx, module, target)
	if err != nil {
		return 0, 0, err
	}
	if due {
		if err := w.optimizer.MarkOptimize(ctx, target); err != nil {
			return 0, 0, errors.Wrapf(err, "mark %s for optimize", target.Table)
		}
		w.ec.Logger.Info("optimize scheduled for target",
			zap.String("table", target.Table),
			zap.Int("module_id", module.ID))
		lastOptimized = untilTS
	} else {
		lastOptimized, err = w.scheduler.LastOptimized(ctx, module.ID)
		if err != nil {
			return 0, 0, err
		}
	}

	return count, lastOptimized, nil
}

// sizeShufflePartitions decides the physical partitioning of the dataset
// ahead of the write: an explicit session hint wins, then the observed
// source partition count, then a single partition.
func sizeShufflePartitions(observed int, known bool, sess *Session) int {
	if hint, ok := sess.Get(shufflePartitionsKey); ok {
		if n, err := strconv.Atoi(hint); err == nil && n > 0 {
			return n
		}
	}
	if known && observed > 0 {
		return observed
	}
	return 1
}
