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

import "github.com/cockroachdb/errors"

// This file contains the two run-level signals the executor matches on.
// They are wrapped with context at the point of origin and inspected with
// errors.Is exactly once at the Process boundary.

var (
	// ErrNoNewData signals that the source dataset is empty for the
	// module's window. Not a failure; the run produces an EMPTY report.
	ErrNoNewData = errors.New("no new data in module window")

	// ErrModuleFailed signals that a module run has failed after its
	// FAILED report was durably persisted. The executor logs it and does
	// not re-raise.
	ErrModuleFailed = errors.New("module execution failed")
)
