// Package repository is the PostgreSQL record store. Repositories exposes the
// same method set as the in-memory store so either can back the engine.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"pacer/internal/database"
)

type Repositories struct {
	*EventRepository
	*OrderRepository
	*AdSpendRepository
	*SnapshotRepository
	*CurveRepository
	*CustomerRepository
	*AudienceRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		EventRepository:    NewEventRepository(db),
		OrderRepository:    NewOrderRepository(db),
		AdSpendRepository:  NewAdSpendRepository(db),
		SnapshotRepository: NewSnapshotRepository(db),
		CurveRepository:    NewCurveRepository(db),
		CustomerRepository: NewCustomerRepository(db),
		AudienceRepository: NewAudienceRepository(db),
	}
}

// jsonb marshals v for a JSONB column
func jsonb(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb: %w", err)
	}
	return b, nil
}

func scanJSONB(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode jsonb: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
