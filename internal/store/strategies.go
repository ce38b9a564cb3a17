package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// pqUniqueViolation is the Postgres error code for unique constraints.
const pqUniqueViolation = "23505"

// StrategyRecord is a stored strategy definition.
type StrategyRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Kind        string          `db:"kind" json:"kind"`
	Parameters  json.RawMessage `db:"parameters" json:"parameters"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// StrategyUpdate carries the fields of a partial update; nil fields are
// left untouched.
type StrategyUpdate struct {
	Name        *string
	Description *string
	Kind        *string
	Parameters  json.RawMessage
	IsActive    *bool
}

// StrategyRepo persists strategy definitions.
type StrategyRepo struct {
	db *sqlx.DB
}

// NewStrategyRepo wraps the database handle.
func NewStrategyRepo(db *sqlx.DB) *StrategyRepo {
	return &StrategyRepo{db: db}
}

// Create inserts a new strategy. A taken name maps to ErrDuplicateName.
func (r *StrategyRepo) Create(ctx context.Context, rec *StrategyRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if len(rec.Parameters) == 0 {
		rec.Parameters = json.RawMessage("{}")
	}

	const query = `
		INSERT INTO strategies (id, name, description, kind, parameters, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Description, rec.Kind, rec.Parameters, rec.IsActive, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting strategy: %w", err)
	}
	return nil
}

// Get fetches a strategy by ID.
func (r *StrategyRepo) Get(ctx context.Context, id uuid.UUID) (*StrategyRecord, error) {
	const query = `SELECT * FROM strategies WHERE id = $1`

	var rec StrategyRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching strategy %s: %w", id, err)
	}
	return &rec, nil
}

// List returns strategies newest-first.
func (r *StrategyRepo) List(ctx context.Context, limit, offset int) ([]StrategyRecord, error) {
	const query = `SELECT * FROM strategies ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	recs := make([]StrategyRecord, 0)
	if err := r.db.SelectContext(ctx, &recs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	return recs, nil
}

// Update applies a partial update and bumps updated_at. A missing row
// maps to ErrNotFound; a name collision to ErrDuplicateName.
func (r *StrategyRepo) Update(ctx context.Context, id uuid.UUID, upd StrategyUpdate) (*StrategyRecord, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		rec.Name = *upd.Name
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Kind != nil {
		rec.Kind = *upd.Kind
	}
	if upd.Parameters != nil {
		rec.Parameters = upd.Parameters
	}
	if upd.IsActive != nil {
		rec.IsActive = *upd.IsActive
	}
	rec.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE strategies
		SET name = $2, description = $3, kind = $4, parameters = $5, is_active = $6, updated_at = $7
		WHERE id = $1`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Description, rec.Kind, rec.Parameters, rec.IsActive, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("updating strategy %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes a strategy. A missing row maps to ErrNotFound.
func (r *StrategyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting strategy %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
