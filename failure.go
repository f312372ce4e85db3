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
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// emptyRetentionHours is the fixed retention window recorded on EMPTY runs.
const emptyRetentionHours = 168

// FailureHandler turns a failing module run into a durable FAILED report.
// It follows a strict three-step protocol: attempt rollback, persist the
// report, then signal failure. The order must not change — the report has
// to be durable even if the caller never observes the signal.
type FailureHandler struct {
	ec        *ExecContext
	db        core.StorageClient
	scheduler *OptimizeScheduler
	finalizer status.Finalizer
}

// NewFailureHandler creates a failure handler.
func NewFailureHandler(ec *ExecContext, db core.StorageClient, scheduler *OptimizeScheduler, finalizer status.Finalizer) *FailureHandler {
	return &FailureHandler{ec: ec, db: db, scheduler: scheduler, finalizer: finalizer}
}

// FailModule rolls the target back best-effort, persists a FAILED report
// embedding the rollback outcome and the diagnostic message, and returns
// the report together with the terminal module-failed signal.
func (h *FailureHandler) FailModule(ctx context.Context, module *core.Module, target *core.Target, message string) (*status.Report, error) {
	outcome := status.RollbackSuccessful
	if err := h.db.RollbackTarget(ctx, target); err != nil {
		// Rollback failure downgrades the outcome but never escalates.
		outcome = status.RollbackFailed
		h.ec.Logger.Error("rollback of target failed",
			zap.String("table", target.Table),
			zap.Int("module_id", module.ID),
			zap.Error(err))
	} else {
		h.ec.Logger.Info("rolled back target",
			zap.String("table", target.Table),
			zap.Int("module_id", module.ID))
	}

	lastOptimized, err := h.scheduler.LastOptimized(ctx, module.ID)
	if err != nil {
		h.ec.Logger.Warn("could not resolve last optimized timestamp, carrying zero",
			zap.Int("module_id", module.ID),
			zap.Error(err))
		lastOptimized = 0
	}

	cfg := h.ec.Config
	report := &status.Report{
		OrganizationID:       cfg.OrganizationID(),
		RunID:                h.ec.RunID,
		ModuleID:             module.ID,
		ModuleName:           module.Name,
		PrimordialDate:       cfg.PrimordialDate(),
		RunStartTS:           0,
		RunEndTS:             0,
		FromTS:               cfg.FromTime(module.ID).UnixMilli(),
		UntilTS:              cfg.UntilTime(module.ID).UnixMilli(),
		DataFrequency:        target.Frequency,
		Status:               status.Failed(outcome, message),
		RecordsAppended:      0,
		LastOptimizedTS:      lastOptimized,
		VacuumRetentionHours: 0,
		InputConfig:          cfg.InputConfig(),
		ParsedConfig:         cfg.ParsedConfig(),
	}

	if err := h.finalizer.Finalize(ctx, report); err != nil {
		return nil, errors.Wrap(err, "persist FAILED report")
	}

	return report, errors.Wrap(core.ErrModuleFailed, message)
}

// EmptyInputHandler turns an empty source into a durable EMPTY report.
// The target is never touched: no write and no rollback occur.
type EmptyInputHandler struct {
	ec        *ExecContext
	scheduler *OptimizeScheduler
	finalizer status.Finalizer
	now       func() time.Time
}

// NewEmptyInputHandler creates an empty-input handler.
func NewEmptyInputHandler(ec *ExecContext, scheduler *OptimizeScheduler, finalizer status.Finalizer) *EmptyInputHandler {
	return &EmptyInputHandler{ec: ec, scheduler: scheduler, finalizer: finalizer, now: time.Now}
}

// HandleNoNewData persists an EMPTY report with zero records, the
// last-optimized timestamp carried forward from history, and the fixed
// retention window.
func (h *EmptyInputHandler) HandleNoNewData(ctx context.Context, module *core.Module, target *core.Target) (*status.Report, error) {
	lastOptimized, err := h.scheduler.LastOptimized(ctx, module.ID)
	if err != nil {
		h.ec.Logger.Warn("could not resolve last optimized timestamp, carrying zero",
			zap.Int("module_id", module.ID),
			zap.Error(err))
		lastOptimized = 0
	}

	cfg := h.ec.Config
	now := h.now().UnixMilli()
	report := &status.Report{
		OrganizationID:       cfg.OrganizationID(),
		RunID:                h.ec.RunID,
		ModuleID:             module.ID,
		ModuleName:           module.Name,
		PrimordialDate:       cfg.PrimordialDate(),
		RunStartTS:           now,
		RunEndTS:             now,
		FromTS:               cfg.FromTime(module.ID).UnixMilli(),
		UntilTS:              cfg.UntilTime(module.ID).UnixMilli(),
		DataFrequency:        target.Frequency,
		Status:               status.Empty,
		RecordsAppended:      0,
		LastOptimizedTS:      lastOptimized,
		VacuumRetentionHours: emptyRetentionHours,
		InputConfig:          cfg.InputConfig(),
		ParsedConfig:         cfg.ParsedConfig(),
	}

	if err := h.finalizer.Finalize(ctx, report); err != nil {
		return nil, errors.Wrap(err, "persist EMPTY report")
	}

	return report, nil
}
