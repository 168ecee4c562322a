package store

import (
	"context"
	"errors"

	"github.com/marchcraft/upscaled/internal/model"
)

// ErrNotFound is returned when a request record does not exist.
var ErrNotFound = errors.New("request record not found")

// Stats holds aggregate upscale statistics for /status.
type Stats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByBackend     map[string]int `json:"by_backend"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for upscale diagnostics. Only
// request summaries and attempt outcomes are stored; image payloads never
// touch the database.
type Store interface {
	CreateRecord(ctx context.Context, r *model.RequestRecord) error
	GetRecord(ctx context.Context, id string) (*model.RequestRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*model.RequestRecord, error)
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempts(ctx context.Context, requestID string) ([]model.Attempt, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
