package order

// SubmitLine payload de una línea enviada a cocina.
// swagger:model SubmitLine
type SubmitLine struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Name      string `json:"name"       example:"Pizza Margarita"`
	Quantity  int    `json:"quantity"   example:"2"`
	Note      string `json:"note"       example:"sin cebolla"`
	Price     string `json:"price"      example:"14000"`
}

// SubmitRequest payload for appending one submission to an order. On the
// first send of a session the order does not exist yet and the same body is
// posted against the table instead.
// swagger:model SubmitRequest
type SubmitRequest struct {
	Lines []SubmitLine `json:"lines"`
}

// ReplaceRequest payload of a rectify-resubmit: the full edited cart that
// atomically replaces every PENDING submission.
// swagger:model ReplaceRequest
type ReplaceRequest struct {
	Lines []SubmitLine `json:"lines"`
}

// StatusRequest payload for a staff state advance.
// swagger:model StatusRequest
type StatusRequest struct {
	Status Status `json:"status" example:"IN_PREPARATION"`
}

func (ls SubmitRequest) ToLines() []Line { return toLines(ls.Lines) }

func (ls ReplaceRequest) ToLines() []Line { return toLines(ls.Lines) }

func toLines(in []SubmitLine) []Line {
	out := make([]Line, 0, len(in))
	for _, l := range in {
		out = append(out, Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Note:      l.Note,
			Price:     l.Price,
		})
	}
	return out
}
