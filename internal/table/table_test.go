package table

import (
	"math/rand"
	"testing"

	"github.com/dromero/qrmesa/internal/order"
)

func TestHappyPathTransitions(t *testing.T) {
	t.Parallel()

	path := []Status{StatusAvailable, StatusOccupied, StatusReceivingOrder, StatusInKitchen,
		StatusEating, StatusRequestingBill, StatusPaid, StatusAvailable}
	for i := 0; i < len(path)-1; i++ {
		if !path[i].CanAdvanceTo(path[i+1]) {
			t.Fatalf("%s -> %s debe ser válido", path[i], path[i+1])
		}
	}
}

func TestOutOfService(t *testing.T) {
	t.Parallel()

	if !StatusAvailable.CanAdvanceTo(StatusOutOfService) {
		t.Fatal("AVAILABLE -> OUT_OF_SERVICE es administrativo")
	}
	if StatusOccupied.CanAdvanceTo(StatusOutOfService) {
		t.Fatal("una mesa ocupada no puede salir de servicio")
	}
	tbl := Table{ID: "T-1", Status: StatusOutOfService}
	if err := tbl.Seat("O-1", StatusInKitchen); err == nil {
		t.Fatal("no se puede sentar en una mesa fuera de servicio")
	}
}

func TestStatusForOrder(t *testing.T) {
	t.Parallel()

	cases := map[order.Status]Status{
		order.StatusInitiated:     StatusReceivingOrder,
		order.StatusReceived:      StatusInKitchen,
		order.StatusInPreparation: StatusInKitchen,
		order.StatusReady:         StatusEating,
		order.StatusServed:        StatusEating,
		order.StatusCompleted:     StatusPaid,
		order.StatusCancelled:     StatusAvailable,
	}
	for os, want := range cases {
		if got := StatusForOrder(os); got != want {
			t.Fatalf("StatusForOrder(%s)=%s, esperaba %s", os, got, want)
		}
	}
}

func TestApplyClearsOnTerminal(t *testing.T) {
	t.Parallel()

	tbl := Table{ID: "T-1", Status: StatusAvailable}
	if err := tbl.Apply("O-1", order.StatusReceived); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tbl.Status != StatusInKitchen || tbl.ActiveOrderID == nil {
		t.Fatalf("status=%s activeOrder=%v", tbl.Status, tbl.ActiveOrderID)
	}
	if err := tbl.Apply("O-1", order.StatusCancelled); err != nil {
		t.Fatalf("apply terminal: %v", err)
	}
	if tbl.Status != StatusAvailable || tbl.ActiveOrderID != nil {
		t.Fatalf("la mesa debe quedar libre: status=%s activeOrder=%v", tbl.Status, tbl.ActiveOrderID)
	}
}

// Property: after any valid sequence of order applies and staff actions,
// activeOrder is non-nil exactly when the status is a seated one.
func TestInvariantAcrossRandomSequences(t *testing.T) {
	t.Parallel()

	orderStates := []order.Status{
		order.StatusInitiated, order.StatusReceived, order.StatusInPreparation,
		order.StatusReady, order.StatusServed, order.StatusCompleted, order.StatusCancelled,
	}
	rng := rand.New(rand.NewSource(42))
	for seq := 0; seq < 200; seq++ {
		tbl := Table{ID: "T-1", Status: StatusAvailable}
		for step := 0; step < 30; step++ {
			switch rng.Intn(3) {
			case 0:
				_ = tbl.Apply("O-1", orderStates[rng.Intn(len(orderStates))])
			case 1:
				tbl.Clear()
			case 2:
				_ = tbl.Seat("O-1", StatusOccupied)
			}
			if err := tbl.CheckInvariant(); err != nil {
				t.Fatalf("seq=%d step=%d status=%s: %v", seq, step, tbl.Status, err)
			}
		}
	}
}
