package table

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("table not found")

type Repository interface {
	GetByID(ctx context.Context, id string) (*Table, error)
	// GetByCode resolves a QR code to its table.
	GetByCode(ctx context.Context, code string) (*Table, error)
	Update(ctx context.Context, t *Table) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var t Table
	err := r.db.QueryRow(ctx, `
    SELECT id,location_id,capacity,status,active_order_id,created_at,updated_at
    FROM tables WHERE id=$1
  `, id).Scan(&t.ID, &t.LocationID, &t.Capacity, &t.Status, &t.ActiveOrderID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PGRepo) GetByCode(ctx context.Context, code string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var t Table
	err := r.db.QueryRow(ctx, `
    SELECT id,location_id,capacity,status,active_order_id,created_at,updated_at
    FROM tables WHERE qr_code=$1
  `, code).Scan(&t.ID, &t.LocationID, &t.Capacity, &t.Status, &t.ActiveOrderID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PGRepo) Update(ctx context.Context, t *Table) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := t.CheckInvariant(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
    UPDATE tables SET status=$2, active_order_id=$3, updated_at=$4 WHERE id=$1
  `, t.ID, t.Status, t.ActiveOrderID, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
