package sift

import (
	"context"
	"time"
)

// BioFact is one remembered fact about the user.
type BioFact struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// BioStore persists bio facts across requests.
type BioStore interface {
	AddFact(ctx context.Context, content string) (BioFact, error)
	DeleteFact(ctx context.Context, id string) error
	ListFacts(ctx context.Context) ([]BioFact, error)

	Init(ctx context.Context) error
	Close() error
}
