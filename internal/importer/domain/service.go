package domain

import (
	"context"
	"errors"
)

// CreateBatchRequest describes an uploaded file before any rows run.
type CreateBatchRequest struct {
	FileName      string            `json:"file_name"`
	FileSize      int64             `json:"file_size"`
	Uploader      string            `json:"uploader"`
	SourceType    string            `json:"source_type"`
	ColumnMapping map[string]string `json:"column_mapping"`
}

// Row is one raw record keyed by source column name.
type Row map[string]string

// BatchDetail is a batch with its recorded row errors.
type BatchDetail struct {
	*ImportBatch
	Errors []*ImportError `json:"errors,omitempty"`
}

type Service interface {
	// CreateBatch opens a batch in processing with zeroed counters.
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*ImportBatch, error)

	// ProcessRow maps, validates and records one row. Malformed rows
	// are rejected and logged as ImportErrors, never returned as
	// errors; only storage failures propagate.
	ProcessRow(ctx context.Context, ref string, rowNumber int, row Row) (Outcome, error)

	// ProcessRows runs rows sequentially. A storage failure fails the
	// batch; row-level problems only mark individual rows.
	ProcessRows(ctx context.Context, ref string, rows []Row) (*ImportBatch, error)

	// FinalizeBatch completes a processing batch; terminal batches are
	// returned unchanged.
	FinalizeBatch(ctx context.Context, ref string) (*ImportBatch, error)

	CancelBatch(ctx context.Context, ref string) (*ImportBatch, error)
	GetBatch(ctx context.Context, ref string) (*BatchDetail, error)
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrBatchNotFound  = errors.New("batch_not_found")
	ErrBatchFinalized = errors.New("batch_finalized")
)
