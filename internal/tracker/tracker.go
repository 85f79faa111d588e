package tracker

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/store/schema"
)

// Attempt describes one finished pipeline run for a token, successful or not
type Attempt struct {
	Ref     domain.SourceRef
	BatchID string

	// Step is the pipeline step the run ended in; ignored on success
	Step schema.ImportStep
	// Err is nil on success
	Err error

	// RawPayload and NormalizedPayload snapshot the run for replay; either may
	// be nil when the run died before producing them
	RawPayload        []byte
	NormalizedPayload []byte

	ArtworkID *int64
}

// Tracker is the indexing/retry ledger over import attempts. Every attempted
// (contract, token) pair gets exactly one row that is updated on every retry
// and never deleted.
//
//go:generate mockgen -source=tracker.go -destination=../mocks/tracker.go -package=mocks -mock_names=Tracker=MockTracker
type Tracker interface {
	// RecordAttempt ledgers one finished pipeline run, bumping the row's
	// attempt count. Failures are classified retryable or terminal from the
	// error chain.
	RecordAttempt(ctx context.Context, attempt Attempt) (*schema.ImportRecord, error)

	// ListRetryable returns failed records whose error class is worth another
	// run and whose attempt count is below maxAttempts
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*schema.ImportRecord, error)

	// MarkForRetry flips one failed record back to pending and returns it
	MarkForRetry(ctx context.Context, id int64) (*schema.ImportRecord, error)
}

type tracker struct {
	store store.Store
}

// New creates a tracker backed by the given store
func New(st store.Store) Tracker {
	return &tracker{store: st}
}

// RecordAttempt ledgers one finished pipeline run
func (t *tracker) RecordAttempt(ctx context.Context, attempt Attempt) (*schema.ImportRecord, error) {
	input := store.RecordAttemptInput{
		ContractAddress: domain.NormalizeAddress(attempt.Ref.Blockchain, attempt.Ref.ContractAddress),
		TokenID:         attempt.Ref.TokenID,
		Source:          attempt.Ref.Source,
		Blockchain:      attempt.Ref.Blockchain,
		MetadataURL:     attempt.Ref.MetadataURL,
		BatchID:         attempt.BatchID,
		ArtworkID:       attempt.ArtworkID,
	}
	if attempt.RawPayload != nil {
		input.RawPayload = datatypes.JSON(attempt.RawPayload)
	}
	if attempt.NormalizedPayload != nil {
		input.NormalizedPayload = datatypes.JSON(attempt.NormalizedPayload)
	}

	if attempt.Err == nil {
		input.Status = schema.ImportStatusSuccess
	} else {
		input.Status = schema.ImportStatusFailed
		input.FailedStep = attempt.Step
		input.Retryable = domain.Retryable(attempt.Err)
		input.ErrorMessage = attempt.Err.Error()
	}

	record, err := t.store.RecordImportAttempt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return record, nil
}

// ListRetryable returns failed records worth another run
func (t *tracker) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*schema.ImportRecord, error) {
	records, err := t.store.ListRetryableImports(ctx, store.ListRetryableInput{
		MaxAttempts: maxAttempts,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return records, nil
}

// MarkForRetry flips one failed record back to pending
func (t *tracker) MarkForRetry(ctx context.Context, id int64) (*schema.ImportRecord, error) {
	record, err := t.store.GetImportRecordByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if record == nil {
		return nil, fmt.Errorf("import record %d: %w", id, domain.ErrNotFound)
	}
	if record.Status != schema.ImportStatusFailed {
		return nil, fmt.Errorf("import record %d is %s, only failed records retry", id, record.Status)
	}
	if err := t.store.MarkImportPending(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	record.Status = schema.ImportStatusPending
	return record, nil
}
