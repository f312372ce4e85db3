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

import "context"

// Package core defines the shared types and capability interfaces for the
// ETLRun execution kernel.
//
// ETLRun executes one unit of an incremental ETL pipeline at a time: pull a
// source dataset, validate its shape, apply an ordered chain of transforms,
// write the result to a durable target, and always record what happened as
// an auditable status report.
//
// This file contains the record type and the transform-chain adapters.

// Record represents a single data record flowing through a module run.
// Each record is a map from column names to values, supporting heterogeneous data.
type Record map[string]interface{}

// TransformStage is one step of a module's ordered transform chain.
// Each stage consumes the previous stage's output dataset and produces the next.
type TransformStage interface {
	// Apply runs the transformation and returns the resulting dataset.
	Apply(ctx context.Context, ds Dataset) (Dataset, error)
}

// TransformStageFunc is a function adapter for the TransformStage interface.
// Allows ordinary functions to be used as transform stages.
type TransformStageFunc func(ctx context.Context, ds Dataset) (Dataset, error)

// Apply implements the TransformStage interface for TransformStageFunc.
func (f TransformStageFunc) Apply(ctx context.Context, ds Dataset) (Dataset, error) {
	return f(ctx, ds)
}
