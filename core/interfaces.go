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

package core

import (
	"context"
	"time"
)

// This file contains the capability interfaces the kernel consumes. The
// heavy distributed work (dataset construction, transformation execution,
// counting, durable writes) lives behind these interfaces and is treated
// as a blocking call that returns a definite result or an error.

// Dataset is the narrow capability interface over a source or intermediate
// dataset. Implementations may be fully materialized or streaming; a
// streaming dataset has no static partition count, which TryPartitionCount
// reports as absence rather than an error.
type Dataset interface {
	// IsEmpty reports whether the dataset holds no records.
	IsEmpty(ctx context.Context) (bool, error)
	// VerifyMinimumSchema checks the dataset against the module's required
	// minimum schema, optionally enforcing non-null constraints on required
	// columns. It returns the validated dataset or a schema-validation error.
	VerifyMinimumSchema(ctx context.Context, required RequiredSchema, enforceNonNull bool) (Dataset, error)
	// TryPartitionCount returns the dataset's physical partition count, or
	// false when the dataset is unbounded and no static count exists.
	TryPartitionCount() (int, bool)
	// Count returns the number of records in the dataset.
	Count(ctx context.Context) (int64, error)
	// Collect materializes the dataset's records.
	Collect(ctx context.Context) ([]Record, error)
	// Repartition re-balances the dataset into n physical partitions.
	Repartition(n int) Dataset
}

// StorageClient is the durable-storage collaborator. It appends datasets
// to targets, re-derives record counts from already-written windows, and
// rolls a target back to its pre-write state after a failed run.
type StorageClient interface {
	// Write appends the dataset to the target. The boolean reports whether
	// storage considered the write successful; false is fatal for the run
	// even when err is nil.
	Write(ctx context.Context, ds Dataset, target *Target) (bool, error)
	// CountWindow counts records already present in the target whose
	// incremental column falls inside [fromTS, untilTS), both epoch millis.
	CountWindow(ctx context.Context, target *Target, fromTS, untilTS int64) (int64, error)
	// RollbackTarget reverts the target to its state before the last write.
	RollbackTarget(ctx context.Context, target *Target) error
}

// Optimizer is the physical-maintenance collaborator. Marking a target is
// cheap bookkeeping; the actual compaction runs when Optimize is invoked
// by the surrounding pipeline after all modules complete.
type Optimizer interface {
	MarkOptimize(ctx context.Context, target *Target) error
	Optimize(ctx context.Context) error
}

// SchemaRegistry resolves the minimum required schema for a module.
type SchemaRegistry interface {
	Get(module *Module) (RequiredSchema, error)
}

// ConfigAccessor resolves the run-scoped configuration the kernel needs.
// It replaces ambient configuration singletons: every component receives
// it through the execution context.
type ConfigAccessor interface {
	// OrganizationID identifies the owning installation.
	OrganizationID() string
	// PrimordialDate is the pipeline epoch marker, echoed into every report.
	PrimordialDate() string
	// FromTime resolves the inclusive lower bound of the module's window.
	FromTime(moduleID int) time.Time
	// UntilTime resolves the exclusive upper bound of the module's window.
	UntilTime(moduleID int) time.Time
	// IsFirstRun reports whether this is the pipeline's first run for this
	// installation.
	IsFirstRun() bool
	// IsLocalTesting reports whether the pipeline runs in isolated local
	// test mode, which suppresses optimize scheduling.
	IsLocalTesting() bool
	// VacuumRetentionHours is the retention window recorded on successful runs.
	VacuumRetentionHours() int64
	// SessionOverrides is the session-level configuration applied around
	// engine calls for the duration of one write.
	SessionOverrides() map[string]string
	// InputConfig is the raw pipeline configuration, echoed for audit.
	InputConfig() string
	// ParsedConfig is the resolved pipeline configuration, echoed for audit.
	ParsedConfig() string
}
