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
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/etlrun/core"
)

// ParquetSourceError provides structured error information for parquet
// source operations.
type ParquetSourceError struct {
	Op  string
	Err error
}

func (e *ParquetSourceError) Error() string {
	return fmt.Sprintf("parquet source %s: %v", e.Op, e.Err)
}

func (e *ParquetSourceError) Unwrap() error {
	return e.Err
}

// ParquetSourceOptions configures the Parquet source.
type ParquetSourceOptions struct {
	BatchSize       int64
	Columns         []string
	Window          Window
	WatermarkColumn string
}

// SourceOptionParquet represents a configuration function.
type SourceOptionParquet func(*ParquetSourceOptions)

func WithParquetBatchSize(size int64) SourceOptionParquet {
	return func(opts *ParquetSourceOptions) { opts.BatchSize = size }
}

func WithParquetColumns(columns ...string) SourceOptionParquet {
	return func(opts *ParquetSourceOptions) {
		opts.Columns = make([]string, len(columns))
		copy(opts.Columns, columns)
	}
}

// WithParquetWindow restricts the stream to rows whose watermark column
// falls inside the incremental window.
func WithParquetWindow(w Window, watermarkColumn string) SourceOptionParquet {
	return func(opts *ParquetSourceOptions) {
		opts.Window = w
		opts.WatermarkColumn = watermarkColumn
	}
}

// ParquetSource streams rows from a Parquet file through an Arrow
// record reader, one row at a time.
type ParquetSource struct {
	fileHandle      *os.File
	reader          *file.Reader
	arrowReader     *pqarrow.FileReader
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	schema          *arrow.Schema
	opts            ParquetSourceOptions
}

// NewParquetSource opens a Parquet file and prepares an Arrow record
// reader with optional column projection.
func NewParquetSource(filename string, options ...SourceOptionParquet) (*ParquetSource, error) {
	opts := ParquetSourceOptions{BatchSize: 1000}
	for _, option := range options {
		option(&opts)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetSourceError{Op: "open_file", Err: err}
	}

	parquetReader, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, &ParquetSourceError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		f.Close()
		return nil, &ParquetSourceError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		f.Close()
		return nil, &ParquetSourceError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	if len(opts.Columns) > 0 {
		for _, name := range opts.Columns {
			idx := -1
			for i, field := range schema.Fields() {
				if field.Name == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				f.Close()
				return nil, &ParquetSourceError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
			}
			colIndices = append(colIndices, idx)
		}
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		f.Close()
		return nil, &ParquetSourceError{Op: "create_record_reader", Err: err}
	}

	return &ParquetSource{
		fileHandle:   f,
		reader:       parquetReader,
		arrowReader:  arrowReader,
		recordReader: recordReader,
		schema:       schema,
		opts:         opts,
	}, nil
}

// Read returns the next in-window row, or io.EOF once the file is
// exhausted.
func (p *ParquetSource) Read(ctx context.Context) (core.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, &ParquetSourceError{Op: "read", Err: ctx.Err()}
		default:
		}

		if p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
			if err := p.loadNextBatch(); err != nil {
				if err == io.EOF {
					return nil, io.EOF
				}
				return nil, &ParquetSourceError{Op: "load_batch", Err: err}
			}
		}

		record := p.extractRecordFromBatch(p.currentBatch, p.currentBatchIdx)
		p.currentBatchIdx++

		if !p.opts.Window.Admit(record, p.opts.WatermarkColumn) {
			continue
		}
		return record, nil
	}
}

// Close releases resources and closes the underlying file.
func (p *ParquetSource) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.fileHandle != nil {
		return p.fileHandle.Close()
	}
	return nil
}

// Schema returns the Arrow schema of the Parquet file.
func (p *ParquetSource) Schema() *arrow.Schema {
	return p.schema
}

// TotalRows returns the row count recorded in the file metadata. This
// counts all rows, not only those inside the window.
func (p *ParquetSource) TotalRows() int64 {
	return p.reader.NumRows()
}

func (p *ParquetSource) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	rec, err := p.recordReader.Read()
	if err != nil {
		return err
	}
	if rec == nil || rec.NumRows() == 0 {
		return io.EOF
	}

	rec.Retain()
	p.currentBatch = rec
	p.currentBatchIdx = 0
	return nil
}

func (p *ParquetSource) extractRecordFromBatch(rec arrow.Record, pos int) core.Record {
	result := make(core.Record, rec.NumCols())
	sch := rec.Schema()
	for i := 0; i < int(rec.NumCols()); i++ {
		result[sch.Field(i).Name] = extractArrowValue(rec.Column(i), pos)
	}
	return result
}

func extractArrowValue(col arrow.Array, rowIdx int) interface{} {
	if col.IsNull(rowIdx) {
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return arr.Value(rowIdx)
	case *array.Int16:
		return arr.Value(rowIdx)
	case *array.Int32:
		return arr.Value(rowIdx)
	case *array.Int64:
		return arr.Value(rowIdx)
	case *array.Uint8:
		return arr.Value(rowIdx)
	case *array.Uint16:
		return arr.Value(rowIdx)
	case *array.Uint32:
		return arr.Value(rowIdx)
	case *array.Uint64:
		return arr.Value(rowIdx)
	case *array.Float32:
		return arr.Value(rowIdx)
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.Binary:
		return arr.Value(rowIdx)
	case *array.Timestamp:
		return arr.Value(rowIdx).ToTime(arrow.Microsecond)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime()
	case *array.Date64:
		return arr.Value(rowIdx).ToTime()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}
