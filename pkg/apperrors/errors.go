package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Ingestion failure taxonomy.
var (
	ErrFetch               = errors.New("fetch failed")
	ErrScrape              = errors.New("scrape failed")
	ErrClassification      = errors.New("classification failed")
	ErrPersist             = errors.New("persist failed")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNoArticles          = errors.New("no relevant articles")
	ErrCircuitOpen         = errors.New("circuit breaker open")
)

// Ingestion stages, in execution order.
const (
	StageGate     = "gate"
	StageFetch    = "fetch"
	StageFilter   = "filter"
	StageEnrich   = "enrich"
	StagePersist  = "persist"
	StageNotify   = "notify"
	StageBackfill = "backfill"
)

// StageError records which ingestion stage failed for a ticker and date.
// errors.Is matches both the stage's taxonomy sentinel and the cause.
type StageError struct {
	Stage  string
	Ticker string
	Date   time.Time
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Ticker, e.Date.Format(time.DateOnly), e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	if kind := stageKind(e.Stage); kind != nil {
		return []error{kind, e.Err}
	}
	return []error{e.Err}
}

func stageKind(stage string) error {
	switch stage {
	case StageFetch:
		return ErrFetch
	case StageEnrich:
		return ErrClassification
	case StagePersist:
		return ErrPersist
	}
	return nil
}

// Stage wraps err with the stage, ticker and date it occurred in. A nil err stays nil.
func Stage(stage, ticker string, date time.Time, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Ticker: ticker, Date: date, Err: err}
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
