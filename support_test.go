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
	"sync"
	"time"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// fakeConfig is a fixed core.ConfigAccessor for kernel tests.
type fakeConfig struct {
	org          string
	primordial   string
	from         time.Time
	until        time.Time
	firstRun     bool
	localTesting bool
	vacuum       int64
	overrides    map[string]string
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		org:        "org-1",
		primordial: "2020-01-01",
		from:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		until:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		vacuum:     168,
		overrides:  map[string]string{},
	}
}

func (c *fakeConfig) OrganizationID() string              { return c.org }
func (c *fakeConfig) PrimordialDate() string              { return c.primordial }
func (c *fakeConfig) FromTime(moduleID int) time.Time     { return c.from }
func (c *fakeConfig) UntilTime(moduleID int) time.Time    { return c.until }
func (c *fakeConfig) IsFirstRun() bool                    { return c.firstRun }
func (c *fakeConfig) IsLocalTesting() bool                { return c.localTesting }
func (c *fakeConfig) VacuumRetentionHours() int64         { return c.vacuum }
func (c *fakeConfig) SessionOverrides() map[string]string { return c.overrides }
func (c *fakeConfig) InputConfig() string                 { return "input: raw" }
func (c *fakeConfig) ParsedConfig() string                { return `{"input":"parsed"}` }

// fakeStorage records writes and rollbacks in memory.
type fakeStorage struct {
	mu sync.Mutex

	writeOK  bool
	writeErr error
	written  [][]core.Record
	targets  []string

	countWindow      int64
	countWindowErr   error
	countWindowCalls int

	rollbackErr error
	rollbacks   []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{writeOK: true}
}

func (s *fakeStorage) Write(ctx context.Context, ds core.Dataset, target *core.Target) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return false, s.writeErr
	}
	if !s.writeOK {
		return false, nil
	}
	records, err := ds.Collect(ctx)
	if err != nil {
		return false, err
	}
	s.written = append(s.written, records)
	s.targets = append(s.targets, target.Table)
	return true, nil
}

func (s *fakeStorage) CountWindow(ctx context.Context, target *core.Target, fromTS, untilTS int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countWindowCalls++
	return s.countWindow, s.countWindowErr
}

func (s *fakeStorage) RollbackTarget(ctx context.Context, target *core.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks = append(s.rollbacks, target.Table)
	return s.rollbackErr
}

// fakeHistory serves a fixed last-optimized timestamp.
type fakeHistory struct {
	lastOptimized int64
	err           error
	detail        *status.Report
}

func (h *fakeHistory) LastOptimized(ctx context.Context, moduleID int) (int64, error) {
	return h.lastOptimized, h.err
}

func (h *fakeHistory) LastRunDetail(ctx context.Context, moduleID int) (*status.Report, error) {
	return h.detail, h.err
}

// fakeFinalizer captures persisted reports.
type fakeFinalizer struct {
	mu      sync.Mutex
	reports []*status.Report
	err     error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, report *status.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func (f *fakeFinalizer) last() *status.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return nil
	}
	return f.reports[len(f.reports)-1]
}

// fakeOptimizer records marked tables.
type fakeOptimizer struct {
	mu     sync.Mutex
	marked []string
	err    error
}

func (o *fakeOptimizer) MarkOptimize(ctx context.Context, target *core.Target) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.marked = append(o.marked, target.Table)
	return nil
}

func (o *fakeOptimizer) Optimize(ctx context.Context) error { return nil }

// testKernel bundles the wired collaborators for one test run.
type testKernel struct {
	cfg       *fakeConfig
	ec        *ExecContext
	db        *fakeStorage
	history   *fakeHistory
	optimizer *fakeOptimizer
	finalizer *fakeFinalizer
	scheduler *OptimizeScheduler
	failure   *FailureHandler
	empty     *EmptyInputHandler
	writer    *AppendWriter
	module    *core.Module
	target    *core.Target
}

func newTestKernel() *testKernel {
	cfg := newFakeConfig()
	k := &testKernel{
		cfg:       cfg,
		ec:        NewExecContext(nil, cfg),
		db:        newFakeStorage(),
		history:   &fakeHistory{},
		optimizer: &fakeOptimizer{},
		finalizer: &fakeFinalizer{},
		module:    &core.Module{ID: 1010, Name: "events"},
		target: &core.Target{
			Table:              "events",
			PrimaryKeys:        []string{"id"},
			IncrementalColumns: []string{"ts"},
			Frequency:          core.FrequencyDaily,
		},
	}
	k.scheduler = NewOptimizeScheduler(cfg, k.history)
	k.failure = NewFailureHandler(k.ec, k.db, k.scheduler, k.finalizer)
	k.empty = NewEmptyInputHandler(k.ec, k.scheduler, k.finalizer)
	k.writer = NewAppendWriter(k.ec, k.db, k.optimizer, k.scheduler, k.failure, k.finalizer)
	return k
}

// freeze pins every clock in the kernel to the given instant.
func (k *testKernel) freeze(now time.Time) {
	clock := func() time.Time { return now }
	k.scheduler.now = clock
	k.empty.now = clock
	k.writer.now = clock
}
