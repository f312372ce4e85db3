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
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
)

// Package etlrun implements the module-execution kernel: definition and
// execution of a single incremental ETL step, its write-and-verify path,
// its failure and rollback handling, and its status-reporting and
// optimize-scheduling decisions.
//
// The kernel runs single-threaded per module invocation. Validation
// strictly precedes transforms, transforms precede the write, and the
// write precedes report persistence. Every invocation ends with exactly
// one persisted status report.

// ExecContext carries the run-scoped collaborators every component
// receives explicitly: the logger, the configuration accessor, the
// session-override map, and the run identity. There is no ambient global
// state.
type ExecContext struct {
	Logger  *zap.Logger
	Config  core.ConfigAccessor
	Session *Session
	RunID   string

	mu                 sync.Mutex
	observedPartitions int
	observedKnown      bool
}

// NewExecContext creates the context for one module invocation with a
// fresh run id.
func NewExecContext(logger *zap.Logger, cfg core.ConfigAccessor) *ExecContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecContext{
		Logger:  logger,
		Config:  cfg,
		Session: NewSession(),
		RunID:   uuid.NewString(),
	}
}

// RecordSourcePartitions stores the source's post-validation partition
// count for the write path's re-balancing step.
func (c *ExecContext) RecordSourcePartitions(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observedPartitions = n
	c.observedKnown = true
}

// SourcePartitions returns the observed source partition count, or false
// when the source was streaming and no count was obtainable.
func (c *ExecContext) SourcePartitions() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observedPartitions, c.observedKnown
}

// Session is the mutable session-level configuration shared with the
// external engine. Overrides applied for a run must be restored to their
// pre-run values on the success path; a failure path deliberately leaves
// them for the surrounding pipeline to reset.
type Session struct {
	mu     sync.Mutex
	values map[string]string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{values: make(map[string]string)}
}

// Get returns the session value for key.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a session value.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Apply sets every override and returns a snapshot of the prior values.
// A nil snapshot entry marks a key that was previously unset.
func (s *Session) Apply(overrides map[string]string) map[string]*string {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*string, len(overrides))
	for key, value := range overrides {
		if prev, ok := s.values[key]; ok {
			p := prev
			snapshot[key] = &p
		} else {
			snapshot[key] = nil
		}
		s.values[key] = value
	}
	return snapshot
}

// Restore puts the snapshotted values back, deleting keys that were unset
// before Apply.
func (s *Session) Restore(snapshot map[string]*string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, prev := range snapshot {
		if prev == nil {
			delete(s.values, key)
		} else {
			s.values[key] = *prev
		}
	}
}
