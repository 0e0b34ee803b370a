package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the running tab for one seating. The service owns the row; clients
// hold a read-through projection of it.
type Order struct {
	ID          string       `json:"id"`
	TableID     string       `json:"table_id"`
	LocationID  string       `json:"location_id"`
	Status      Status       `json:"status"`
	Submissions []Submission `json:"submissions"`
	// NUMERIC -> string
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is one batch of lines sent to the kitchen. Immutable once sent,
// except that the whole PENDING set is swapped during a rectify-resubmit.
type Submission struct {
	ID        string           `json:"id"`
	OrderID   string           `json:"order_id"`
	Status    SubmissionStatus `json:"status"`
	Lines     []Line           `json:"lines"`
	CreatedAt time.Time        `json:"created_at"`
}

type Line struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
	// unit price, NUMERIC -> string
	Price string `json:"price"`
}

// Snapshot is the authoritative state the service reports for one session,
// either pushed over the events exchange or fetched by the fallback poll.
// ObservedAt orders competing snapshots for the same order.
type Snapshot struct {
	Order      Order     `json:"order"`
	ObservedAt time.Time `json:"observed_at"`
}

// RecomputeTotal suma qty*price de todas las submissions no canceladas.
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for _, s := range o.Submissions {
		if s.Status == SubCancelled {
			continue
		}
		total = total.Add(s.Total())
	}
	o.Total = total.String()
}

// Total of one submission.
func (s Submission) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Pending reports the submissions still replaceable by a rectify.
func (o *Order) Pending() []Submission {
	var out []Submission
	for _, s := range o.Submissions {
		if s.Status == SubPending {
			out = append(out, s)
		}
	}
	return out
}
