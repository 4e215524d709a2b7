// Package postgres implements sift.BioStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ihubanov/sift"
)

// Store implements sift.BioStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ sift.BioStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the bio_facts table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS bio_facts (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// AddFact stores a new fact and returns it with its generated id.
func (s *Store) AddFact(ctx context.Context, content string) (sift.BioFact, error) {
	fact := sift.BioFact{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bio_facts (id, content, created_at) VALUES ($1, $2, $3)`,
		fact.ID, fact.Content, fact.CreatedAt)
	if err != nil {
		return sift.BioFact{}, fmt.Errorf("insert fact: %w", err)
	}
	return fact, nil
}

// DeleteFact removes a fact by id. Deleting an unknown id is not an error.
func (s *Store) DeleteFact(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bio_facts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	return nil
}

// ListFacts returns all facts, oldest first.
func (s *Store) ListFacts(ctx context.Context) ([]sift.BioFact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, created_at FROM bio_facts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []sift.BioFact
	for rows.Next() {
		var f sift.BioFact
		if err := rows.Scan(&f.ID, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }
