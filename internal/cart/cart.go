// Package cart is the local, ephemeral basket a customer composes before a
// send. It never touches the network; it exists to be serialized into exactly
// one submission.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/dromero/qrmesa/internal/order"
)

var ErrEmptyCart = errors.New("cart is empty")

type line struct {
	productID string
	name      string
	quantity  int
	note      string
	price     string
}

// Cart maps product id -> (quantity, note), insertion-ordered so the
// serialized submission is stable.
type Cart struct {
	index map[string]int
	lines []line
}

func New() *Cart {
	return &Cart{index: map[string]int{}}
}

// FromSubmissions builds the editable cart for a rectify: every line of every
// pending submission is folded into one quantity-aggregated map. When the
// same product shows up in more than one submission, the later submission's
// note wins. Only the pending set is editable; whatever already moved past
// PENDING stays in the kitchen untouched.
func FromSubmissions(subs []order.Submission) *Cart {
	c := New()
	for _, s := range subs {
		if s.Status != order.SubPending {
			continue
		}
		for _, l := range s.Lines {
			if i, ok := c.index[l.ProductID]; ok {
				c.lines[i].quantity += l.Quantity
				c.lines[i].note = l.Note
				continue
			}
			c.add(l.ProductID, l.Name, l.Quantity, l.Note, l.Price)
		}
	}
	return c
}

func (c *Cart) add(productID, name string, qty int, note, price string) {
	c.index[productID] = len(c.lines)
	c.lines = append(c.lines, line{productID: productID, name: name, quantity: qty, note: note, price: price})
}

// Add increments the product's quantity, creating the line if needed.
func (c *Cart) Add(productID, name string, qty int, note, price string) {
	if qty <= 0 {
		return
	}
	if i, ok := c.index[productID]; ok {
		c.lines[i].quantity += qty
		if note != "" {
			c.lines[i].note = note
		}
		return
	}
	c.add(productID, name, qty, note, price)
}

// Remove drops the product entirely.
func (c *Cart) Remove(productID string) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, productID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].productID] = j
	}
}

// SetQuantity pins the quantity; zero removes the line.
func (c *Cart) SetQuantity(productID string, qty int) {
	if qty <= 0 {
		c.Remove(productID)
		return
	}
	if i, ok := c.index[productID]; ok {
		c.lines[i].quantity = qty
	}
}

func (c *Cart) SetNote(productID, note string) {
	if i, ok := c.index[productID]; ok {
		c.lines[i].note = note
	}
}

func (c *Cart) Quantity(productID string) int {
	if i, ok := c.index[productID]; ok {
		return c.lines[i].quantity
	}
	return 0
}

func (c *Cart) Note(productID string) string {
	if i, ok := c.index[productID]; ok {
		return c.lines[i].note
	}
	return ""
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) Empty() bool { return len(c.lines) == 0 }

// Lines materializes the cart as the lines of one submission request.
func (c *Cart) Lines() []order.SubmitLine {
	out := make([]order.SubmitLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, order.SubmitLine{
			ProductID: l.productID,
			Name:      l.name,
			Quantity:  l.quantity,
			Note:      l.note,
			Price:     l.price,
		})
	}
	return out
}

// Total del carrito.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		p, err := decimal.NewFromString(l.price)
		if err != nil {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	return total
}
