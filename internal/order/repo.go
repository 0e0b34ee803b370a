package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrNotEditable: the kitchen already accepted the order, the PENDING set
	// is no longer replaceable.
	ErrNotEditable = errors.New("order is not editable")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetActiveByTable(ctx context.Context, tableID string) (*Order, error)
	AppendSubmission(ctx context.Context, orderID string, sub Submission, total string) error
	ReplacePending(ctx context.Context, orderID string, sub Submission, total string) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, table_id, location_id, status, total, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$6)
  `, o.ID, o.TableID, o.LocationID, o.Status, o.Total, o.CreatedAt); err != nil {
		return err
	}
	for _, s := range o.Submissions {
		if err := insertSubmission(ctx, tx, o.ID, s); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	err := r.db.QueryRow(ctx, `
    SELECT id,table_id,location_id,status,total::text,created_at,updated_at
    FROM orders WHERE id=$1
  `, id).Scan(&o.ID, &o.TableID, &o.LocationID, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Submissions, err = r.submissions(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) GetActiveByTable(ctx context.Context, tableID string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id string
	err := r.db.QueryRow(ctx, `
    SELECT id FROM orders
    WHERE table_id=$1 AND status NOT IN ('COMPLETED','CANCELLED')
    ORDER BY created_at DESC LIMIT 1
  `, tableID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *PGRepo) AppendSubmission(ctx context.Context, orderID string, sub Submission, total string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertSubmission(ctx, tx, orderID, sub); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
    UPDATE orders SET total=$2, status='RECEIVED', updated_at=$3 WHERE id=$1
  `, orderID, total, sub.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// ReplacePending swaps every PENDING submission for the single rectified one
// in one transaction, so old and new lines are never billable at once.
func (r *PGRepo) ReplacePending(ctx context.Context, orderID string, sub Submission, total string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	// the replace is only legal while the order sits in the rectify window
	if status != StatusInitiated && status != StatusReceived {
		return ErrNotEditable
	}

	if _, err := tx.Exec(ctx, `
    DELETE FROM submission_lines WHERE submission_id IN
      (SELECT id FROM submissions WHERE order_id=$1 AND status='PENDING')
  `, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    DELETE FROM submissions WHERE order_id=$1 AND status='PENDING'
  `, orderID); err != nil {
		return err
	}
	if err := insertSubmission(ctx, tx, orderID, sub); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    UPDATE orders SET total=$2, status='RECEIVED', updated_at=$3 WHERE id=$1
  `, orderID, total, sub.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1
  `, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) submissions(ctx context.Context, orderID string) ([]Submission, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id,order_id,status,created_at
    FROM submissions WHERE order_id=$1 ORDER BY created_at
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.OrderID, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range subs {
		lrows, err := r.db.Query(ctx, `
      SELECT product_id,name,quantity,note,price::text
      FROM submission_lines WHERE submission_id=$1
    `, subs[i].ID)
		if err != nil {
			return nil, err
		}
		for lrows.Next() {
			var l Line
			if err := lrows.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.Note, &l.Price); err != nil {
				lrows.Close()
				return nil, err
			}
			subs[i].Lines = append(subs[i].Lines, l)
		}
		if err := lrows.Err(); err != nil {
			lrows.Close()
			return nil, err
		}
		lrows.Close()
	}
	return subs, nil
}

func insertSubmission(ctx context.Context, tx pgx.Tx, orderID string, s Submission) error {
	if _, err := tx.Exec(ctx, `
    INSERT INTO submissions (id, order_id, status, created_at)
    VALUES ($1,$2,$3,$4)
  `, s.ID, orderID, s.Status, s.CreatedAt); err != nil {
		return err
	}
	for _, l := range s.Lines {
		if _, err := tx.Exec(ctx, `
      INSERT INTO submission_lines (submission_id, product_id, name, quantity, note, price)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, s.ID, l.ProductID, l.Name, l.Quantity, l.Note, l.Price); err != nil {
			return err
		}
	}
	return nil
}
