package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dromero/qrmesa/internal/httpx"
	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/realtime"
	"github.com/dromero/qrmesa/internal/session"
	"github.com/dromero/qrmesa/internal/table"
)

// eventPublisher is what the handlers need from the broker side.
type eventPublisher interface {
	Publish(ctx context.Context, room realtime.Room, event string, observedAt time.Time, payload any) error
}

// resolveQRHandler maps an opaque code to the session identity behind it.
// An unknown code is a plain 404; order_id is null until somebody orders.
func resolveQRHandler(tables table.Repository, orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Code string `json:"code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
			httpx.Error(c, http.StatusBadRequest, "code is required")
			return
		}
		t, err := tables.GetByCode(c.Request.Context(), req.Code)
		if errors.Is(err, table.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "unknown code")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		res := session.Resolution{LocationID: t.LocationID, TableID: t.ID, OrderID: t.ActiveOrderID}
		c.JSON(http.StatusOK, res)
	}
}

// getSessionHandler returns the authoritative state the fallback poll
// overwrites the client projection with.
func getSessionHandler(tables table.Repository, orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := tables.GetByCode(c.Request.Context(), c.Param("code"))
		if errors.Is(err, table.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "unknown code")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		state := session.State{Table: table.Snapshot{Table: *t, ObservedAt: t.UpdatedAt}}
		if t.ActiveOrderID != nil {
			o, err := orders.GetByID(c.Request.Context(), *t.ActiveOrderID)
			if err != nil && !errors.Is(err, order.ErrNotFound) {
				httpx.Error(c, http.StatusInternalServerError, err.Error())
				return
			}
			if o != nil {
				state.Order = &order.Snapshot{Order: *o, ObservedAt: o.UpdatedAt}
			}
		}
		c.JSON(http.StatusOK, state)
	}
}

// createOrderHandler opens the table's order with its first submission.
// A table carries at most one non-terminal order.
func createOrderHandler(orders order.Repository, tables table.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Lines) == 0 {
			httpx.Error(c, http.StatusBadRequest, "lines are required")
			return
		}
		ctx := c.Request.Context()
		t, err := tables.GetByID(ctx, c.Param("id"))
		if errors.Is(err, table.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "table not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if t.ActiveOrderID != nil {
			httpx.Error(c, http.StatusConflict, "table already has an active order")
			return
		}
		if t.Status == table.StatusOutOfService {
			httpx.Error(c, http.StatusConflict, "table is out of service")
			return
		}

		now := time.Now().UTC()
		o := &order.Order{
			ID:         uuid.NewString(),
			TableID:    t.ID,
			LocationID: t.LocationID,
			Status:     order.StatusReceived,
			Submissions: []order.Submission{{
				ID:        uuid.NewString(),
				Status:    order.SubPending,
				Lines:     req.ToLines(),
				CreatedAt: now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		o.Submissions[0].OrderID = o.ID
		o.RecomputeTotal()
		if err := orders.Create(ctx, o); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if err := updateTableForOrder(ctx, tables, pub, t, o, now); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		snap := order.Snapshot{Order: *o, ObservedAt: now}
		publishOrder(ctx, pub, realtime.EventOrderStateChanged, &snap)
		c.JSON(http.StatusCreated, snap)
	}
}

// appendSubmissionHandler adds one more batch to a live order.
func appendSubmissionHandler(orders order.Repository, tables table.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Lines) == 0 {
			httpx.Error(c, http.StatusBadRequest, "lines are required")
			return
		}
		ctx := c.Request.Context()
		o, err := orders.GetByID(ctx, c.Param("id"))
		if errors.Is(err, order.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if o.Status.Terminal() {
			httpx.Error(c, http.StatusConflict, "order is closed")
			return
		}
		now := time.Now().UTC()
		sub := order.Submission{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Status:    order.SubPending,
			Lines:     req.ToLines(),
			CreatedAt: now,
		}
		o.Submissions = append(o.Submissions, sub)
		o.Status = order.StatusReceived
		o.UpdatedAt = now
		o.RecomputeTotal()
		if err := orders.AppendSubmission(ctx, o.ID, sub, o.Total); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		finishOrderMutation(c, orders, tables, pub, realtime.EventSubmissionStateChanged, o, now)
	}
}

// replaceSubmissionsHandler is the rectify-resubmit: one new submission
// atomically replaces the whole PENDING set. This is the single sanctioned
// break in submissions-are-append-only.
func replaceSubmissionsHandler(orders order.Repository, tables table.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.ReplaceRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Lines) == 0 {
			httpx.Error(c, http.StatusBadRequest, "lines are required")
			return
		}
		ctx := c.Request.Context()
		o, err := orders.GetByID(ctx, c.Param("id"))
		if errors.Is(err, order.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		now := time.Now().UTC()
		sub := order.Submission{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Status:    order.SubPending,
			Lines:     req.ToLines(),
			CreatedAt: now,
		}
		var kept []order.Submission
		for _, s := range o.Submissions {
			if s.Status != order.SubPending {
				kept = append(kept, s)
			}
		}
		o.Submissions = append(kept, sub)
		o.Status = order.StatusReceived
		o.UpdatedAt = now
		o.RecomputeTotal()
		err = orders.ReplacePending(ctx, o.ID, sub, o.Total)
		if errors.Is(err, order.ErrNotEditable) {
			httpx.Error(c, http.StatusConflict, "order is no longer editable")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		finishOrderMutation(c, orders, tables, pub, realtime.EventSubmissionStateChanged, o, now)
	}
}

// updateOrderStatusHandler advances the lifecycle (staff/kitchen action).
// next=INITIATED is the rectify back-edge, legal only from RECEIVED.
func updateOrderStatusHandler(orders order.Repository, tables table.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
			httpx.Error(c, http.StatusBadRequest, "invalid status")
			return
		}
		ctx := c.Request.Context()
		o, err := orders.GetByID(ctx, c.Param("id"))
		if errors.Is(err, order.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if !o.Status.CanAdvanceTo(req.Status) {
			httpx.Error(c, http.StatusConflict, "invalid transition")
			return
		}
		now := time.Now().UTC()
		o.Status = req.Status
		o.UpdatedAt = now
		if err := orders.UpdateStatus(ctx, o.ID, req.Status, now); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		finishOrderMutation(c, orders, tables, pub, realtime.EventOrderStateChanged, o, now)
	}
}

// cancelOrderHandler terminates from any non-terminal state.
func cancelOrderHandler(orders order.Repository, tables table.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		o, err := orders.GetByID(ctx, c.Param("id"))
		if errors.Is(err, order.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if o.Status.Terminal() {
			httpx.Error(c, http.StatusConflict, "order is closed")
			return
		}
		now := time.Now().UTC()
		o.Status = order.StatusCancelled
		o.UpdatedAt = now
		if err := orders.UpdateStatus(ctx, o.ID, order.StatusCancelled, now); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		finishOrderMutation(c, orders, tables, pub, realtime.EventOrderStateChanged, o, now)
	}
}

// updateTableStatusHandler is the explicit staff action: seat, request bill,
// clear, out of service.
func updateTableStatusHandler(tables table.Repository, orders order.Repository, pub eventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status table.Status `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
			httpx.Error(c, http.StatusBadRequest, "invalid status")
			return
		}
		ctx := c.Request.Context()
		t, err := tables.GetByID(ctx, c.Param("id"))
		if errors.Is(err, table.ErrNotFound) {
			httpx.Error(c, http.StatusNotFound, "table not found")
			return
		}
		if err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		if !t.Status.CanAdvanceTo(req.Status) {
			httpx.Error(c, http.StatusConflict, "invalid transition")
			return
		}
		// a seated status is only reachable while an order is attached; the
		// table occupies itself when the first send creates one
		if !req.Status.Vacant() && t.ActiveOrderID == nil {
			httpx.Error(c, http.StatusConflict, "table has no active order")
			return
		}
		now := time.Now().UTC()
		if req.Status.Vacant() {
			// clearing a table cancels whatever order still hangs on it
			if t.ActiveOrderID != nil {
				if err := orders.UpdateStatus(ctx, *t.ActiveOrderID, order.StatusCancelled, now); err != nil && !errors.Is(err, order.ErrNotFound) {
					httpx.Error(c, http.StatusInternalServerError, err.Error())
					return
				}
			}
			t.Clear()
			t.Status = req.Status
		} else {
			t.Status = req.Status
		}
		t.UpdatedAt = now
		if err := tables.Update(ctx, t); err != nil {
			httpx.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		snap := table.Snapshot{Table: *t, ObservedAt: now}
		publishTable(ctx, pub, &snap)
		c.JSON(http.StatusOK, snap)
	}
}

// finishOrderMutation syncs the table row to the order's new state, pushes
// both events and writes the snapshot response.
func finishOrderMutation(c *gin.Context, orders order.Repository, tables table.Repository, pub eventPublisher, event string, o *order.Order, now time.Time) {
	ctx := c.Request.Context()
	t, err := tables.GetByID(ctx, o.TableID)
	if err != nil {
		httpx.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := updateTableForOrder(ctx, tables, pub, t, o, now); err != nil {
		httpx.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	snap := order.Snapshot{Order: *o, ObservedAt: now}
	publishOrder(ctx, pub, event, &snap)
	c.JSON(http.StatusOK, snap)
}

func updateTableForOrder(ctx context.Context, tables table.Repository, pub eventPublisher, t *table.Table, o *order.Order, now time.Time) error {
	if err := t.Apply(o.ID, o.Status); err != nil {
		return err
	}
	t.UpdatedAt = now
	if err := tables.Update(ctx, t); err != nil {
		return err
	}
	snap := table.Snapshot{Table: *t, ObservedAt: now}
	publishTable(ctx, pub, &snap)
	return nil
}

// publish failures must not fail the request; the fallback poll covers the
// lost push.
func publishOrder(ctx context.Context, pub eventPublisher, event string, snap *order.Snapshot) {
	room := realtime.Room{Kind: realtime.RoomOrder, ID: snap.Order.ID}
	if err := pub.Publish(ctx, room, event, snap.ObservedAt, snap); err != nil {
		log.Printf("[events] publish %s %s failed: %v", event, room.Key(), err)
	}
}

func publishTable(ctx context.Context, pub eventPublisher, snap *table.Snapshot) {
	room := realtime.Room{Kind: realtime.RoomTable, ID: snap.Table.ID}
	if err := pub.Publish(ctx, room, realtime.EventTableStateChanged, snap.ObservedAt, snap); err != nil {
		log.Printf("[events] publish table %s failed: %v", snap.Table.ID, err)
	}
}
