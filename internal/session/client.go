package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/table"
)

// Client talks to the mesa-service request/response surface.
type Client struct {
	HTTP    *http.Client
	BaseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		BaseURL: baseURL,
	}
}

// Resolve maps an opaque QR code to a session identity. Any rejection from
// the service is ErrInvalidCode; there is nothing to retry.
func (c *Client) Resolve(ctx context.Context, code string) (*Resolution, error) {
	body, _ := json.Marshal(map[string]string{"code": code})
	res, err := c.do(ctx, http.MethodPost, "/qr/resolve", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ErrInvalidCode
	}
	var r Resolution
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FetchSession pulls the authoritative state for the code. The fallback
// poller calls this on its timer.
func (c *Client) FetchSession(ctx context.Context, code string) (*State, error) {
	res, err := c.do(ctx, http.MethodGet, "/sessions/"+code, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrInvalidCode
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch session: %s", res.Status)
	}
	var s State
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateOrder opens the table's order with its first submission.
func (c *Client) CreateOrder(ctx context.Context, tableID string, lines []order.SubmitLine) (*order.Snapshot, error) {
	return c.orderCall(ctx, http.MethodPost, "/tables/"+tableID+"/orders", order.SubmitRequest{Lines: lines})
}

// SubmitItems appends one more submission to a live order.
func (c *Client) SubmitItems(ctx context.Context, orderID string, lines []order.SubmitLine) (*order.Snapshot, error) {
	return c.orderCall(ctx, http.MethodPost, "/orders/"+orderID+"/submissions", order.SubmitRequest{Lines: lines})
}

// ReplacePending is the rectify-resubmit: the whole edited cart atomically
// replaces every pending submission.
func (c *Client) ReplacePending(ctx context.Context, orderID string, lines []order.SubmitLine) (*order.Snapshot, error) {
	return c.orderCall(ctx, http.MethodPut, "/orders/"+orderID+"/submissions", order.ReplaceRequest{Lines: lines})
}

// AdvanceOrder is a staff/customer lifecycle transition, including the
// rectify back-edge (next = INITIATED).
func (c *Client) AdvanceOrder(ctx context.Context, orderID string, next order.Status) (*order.Snapshot, error) {
	return c.orderCall(ctx, http.MethodPut, "/orders/"+orderID+"/status", order.StatusRequest{Status: next})
}

// CancelOrder moves the order to CANCELLED and frees the table.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*order.Snapshot, error) {
	res, err := c.do(ctx, http.MethodDelete, "/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	return decodeOrder(res)
}

// AdvanceTable is an explicit staff table transition (seat, request bill,
// clear, out of service).
func (c *Client) AdvanceTable(ctx context.Context, tableID string, next table.Status) (*table.Snapshot, error) {
	body, _ := json.Marshal(map[string]table.Status{"status": next})
	res, err := c.do(ctx, http.MethodPut, "/tables/"+tableID+"/status", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, table.ErrNotFound
	case http.StatusConflict:
		return nil, ErrBadTransition
	default:
		return nil, fmt.Errorf("advance table: %s", res.Status)
	}
	var snap table.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) orderCall(ctx context.Context, method, path string, payload any) (*order.Snapshot, error) {
	body, _ := json.Marshal(payload)
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return decodeOrder(res)
}

func decodeOrder(res *http.Response) (*order.Snapshot, error) {
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return nil, order.ErrNotFound
	case http.StatusConflict:
		return nil, order.ErrNotEditable
	default:
		return nil, fmt.Errorf("mesa-service: %s", res.Status)
	}
	var snap order.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.HTTP.Do(req)
}
