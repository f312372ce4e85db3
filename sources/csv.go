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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aaronlmathis/etlrun/core"
)

// CSVSourceError wraps structured error information for the CSV source.
type CSVSourceError struct {
	Op  string
	Err error
}

func (e *CSVSourceError) Error() string {
	return fmt.Sprintf("csv source %s: %v", e.Op, e.Err)
}

func (e *CSVSourceError) Unwrap() error {
	return e.Err
}

// CSVSourceOptions configures the CSV source.
type CSVSourceOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	Window           Window
	WatermarkColumn  string
}

// SourceOptionCSV allows functional customization of CSVSource.
type SourceOptionCSV func(*CSVSourceOptions)

func WithCSVComma(r rune) SourceOptionCSV {
	return func(o *CSVSourceOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) SourceOptionCSV {
	return func(o *CSVSourceOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) SourceOptionCSV {
	return func(o *CSVSourceOptions) { o.TrimLeadingSpace = trim }
}

// WithCSVWindow restricts the stream to records whose watermark column
// falls inside the incremental window.
func WithCSVWindow(w Window, watermarkColumn string) SourceOptionCSV {
	return func(o *CSVSourceOptions) {
		o.Window = w
		o.WatermarkColumn = watermarkColumn
	}
}

// CSVSource streams records from a CSV stream, one row at a time.
type CSVSource struct {
	reader  *csv.Reader
	headers []string
	closer  io.Closer
	opts    CSVSourceOptions
}

// NewCSVSource creates a CSVSource with default or overridden options.
func NewCSVSource(r io.ReadCloser, options ...SourceOptionCSV) (*CSVSource, error) {
	opts := CSVSourceOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace

	source := &CSVSource{
		reader: csvReader,
		closer: r,
		opts:   opts,
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			if err == io.EOF {
				// Empty file: no headers, no records.
				source.headers = nil
				return source, nil
			}
			return nil, &CSVSourceError{Op: "read_headers", Err: err}
		}
		source.headers = headers
	}

	return source, nil
}

// Read returns the next in-window record, or io.EOF once the stream is
// exhausted.
func (c *CSVSource) Read(ctx context.Context) (core.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, &CSVSourceError{Op: "read", Err: ctx.Err()}
		default:
		}

		row, err := c.reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, &CSVSourceError{Op: "read_record", Err: err}
		}

		record := make(core.Record, len(row))
		for i, val := range row {
			key := "col_" + strconv.Itoa(i)
			if i < len(c.headers) {
				key = c.headers[i]
			}
			if strings.TrimSpace(val) == "" {
				record[key] = nil
			} else {
				record[key] = parseCSVValue(val)
			}
		}

		if !c.opts.Window.Admit(record, c.opts.WatermarkColumn) {
			continue
		}
		return record, nil
	}
}

// Close releases the underlying stream.
func (c *CSVSource) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// parseCSVValue attempts to infer int, float, bool, or fallback to string.
func parseCSVValue(value string) interface{} {
	value = strings.TrimSpace(value)

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
