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

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// defaultOptimizeInterval is how stale a module's last optimize may get
// before the next run schedules another one.
const defaultOptimizeInterval = 7 * 24 * time.Hour

// RunHistory resolves facts about a module's prior runs from the
// persisted status log.
type RunHistory interface {
	// LastOptimized returns the most recent prior run's recorded
	// last-optimized timestamp for the module, or 0 when no prior run
	// recorded one.
	LastOptimized(ctx context.Context, moduleID int) (int64, error)
	// LastRunDetail returns the most recent prior report for the module,
	// or nil when the module has never run.
	LastRunDetail(ctx context.Context, moduleID int) (*status.Report, error)
}

// OptimizeScheduler decides whether physical optimization of a target is
// due. The decision is pure with respect to its inputs: identical history
// and clock readings always produce the same answer.
type OptimizeScheduler struct {
	cfg     core.ConfigAccessor
	history RunHistory
	now     func() time.Time
}

// NewOptimizeScheduler creates a scheduler reading history from the
// status log.
func NewOptimizeScheduler(cfg core.ConfigAccessor, history RunHistory) *OptimizeScheduler {
	return &OptimizeScheduler{cfg: cfg, history: history, now: time.Now}
}

// LastOptimized resolves the module's last-optimized timestamp from the
// most recent prior run, or 0 on the first run or absent history.
func (s *OptimizeScheduler) LastOptimized(ctx context.Context, moduleID int) (int64, error) {
	if s.cfg.IsFirstRun() {
		return 0, nil
	}
	ts, err := s.history.LastOptimized(ctx, moduleID)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve last optimized for module %d", moduleID)
	}
	return ts, nil
}

// NeedsOptimize reports whether optimization is due for the module's
// target: on the first run, or when the last optimize is older than the
// threshold — and never in isolated local test mode.
func (s *OptimizeScheduler) NeedsOptimize(ctx context.Context, module *core.Module, target *core.Target) (bool, error) {
	if s.cfg.IsLocalTesting() {
		return false, nil
	}
	if s.cfg.IsFirstRun() {
		return true, nil
	}

	last, err := s.LastOptimized(ctx, module.ID)
	if err != nil {
		return false, err
	}

	interval := defaultOptimizeInterval
	if target != nil && target.OptimizeEvery > 0 {
		interval = target.OptimizeEvery
	}

	return last < s.now().Add(-interval).UnixMilli(), nil
}
