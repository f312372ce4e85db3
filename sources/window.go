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

package sources

import (
	"time"

	"github.com/aaronlmathis/etlrun/core"
)

// Package sources provides windowed record readers for the supported
// source systems. Every source streams core.Record values and reports
// io.EOF when the incremental window is exhausted.

// Window bounds an incremental pull: [FromTS, UntilTS) in epoch
// milliseconds. A zero Window disables filtering.
type Window struct {
	FromTS  int64
	UntilTS int64
}

// WindowOf converts wall-clock bounds into a Window.
func WindowOf(from, until time.Time) Window {
	return Window{FromTS: from.UnixMilli(), UntilTS: until.UnixMilli()}
}

// IsZero reports whether the window disables filtering.
func (w Window) IsZero() bool {
	return w.FromTS == 0 && w.UntilTS == 0
}

// Contains reports whether a millisecond timestamp falls inside the
// half-open window.
func (w Window) Contains(ts int64) bool {
	if w.IsZero() {
		return true
	}
	return ts >= w.FromTS && ts < w.UntilTS
}

// Admit reports whether the record's watermark column falls inside the
// window. Records missing the column, or carrying a value that is not a
// timestamp, are rejected rather than silently admitted.
func (w Window) Admit(record core.Record, column string) bool {
	if w.IsZero() || column == "" {
		return true
	}
	ts, ok := watermarkMillis(record[column])
	if !ok {
		return false
	}
	return w.Contains(ts)
}

func watermarkMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case time.Time:
		return t.UnixMilli(), true
	default:
		return 0, false
	}
}
