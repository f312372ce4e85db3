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
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/aaronlmathis/etlrun/core"
)

// JSONSource streams line-delimited JSON records.
type JSONSource struct {
	scanner         *bufio.Scanner
	closer          io.Closer
	window          Window
	watermarkColumn string
}

// SourceOptionJSON allows functional customization of JSONSource.
type SourceOptionJSON func(*JSONSource)

// WithJSONWindow restricts the stream to records whose watermark column
// falls inside the incremental window.
func WithJSONWindow(w Window, watermarkColumn string) SourceOptionJSON {
	return func(s *JSONSource) {
		s.window = w
		s.watermarkColumn = watermarkColumn
	}
}

// NewJSONSource creates a source over line-delimited JSON.
func NewJSONSource(r io.ReadCloser, options ...SourceOptionJSON) *JSONSource {
	source := &JSONSource{
		scanner: bufio.NewScanner(r),
		closer:  r,
	}
	for _, opt := range options {
		opt(source)
	}
	return source
}

// Read returns the next in-window record, or io.EOF once the stream is
// exhausted.
func (j *JSONSource) Read(ctx context.Context) (core.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := j.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record core.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}

		if !j.window.Admit(record, j.watermarkColumn) {
			continue
		}
		return record, nil
	}
}

// Close releases the underlying stream.
func (j *JSONSource) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
