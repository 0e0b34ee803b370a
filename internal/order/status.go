package order

// Status is the order lifecycle. Forward-only, except the rectify back-edge
// RECEIVED -> INITIATED, open only until the kitchen accepts the order.
type Status string

const (
	StatusInitiated     Status = "INITIATED"
	StatusReceived      Status = "RECEIVED"
	StatusInPreparation Status = "IN_PREPARATION"
	StatusReady         Status = "READY"
	StatusServed        Status = "SERVED"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
)

var forward = map[Status]Status{
	StatusInitiated:     StatusReceived,
	StatusReceived:      StatusInPreparation,
	StatusInPreparation: StatusReady,
	StatusReady:         StatusServed,
	StatusServed:        StatusCompleted,
}

func (s Status) Valid() bool {
	if s == StatusCompleted || s == StatusCancelled {
		return true
	}
	_, ok := forward[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanAdvanceTo reports whether next is a legal local transition from s.
// These rules gate local actions (staff buttons, rectify); pushed server
// states are authoritative and bypass them.
func (s Status) CanAdvanceTo(next Status) bool {
	if next == StatusCancelled {
		return !s.Terminal()
	}
	if s == StatusReceived && next == StatusInitiated {
		return true // rectify
	}
	return forward[s] == next
}

// CanRectify: only a RECEIVED order, still untouched by the kitchen, can be
// reopened for editing.
func (s Status) CanRectify() bool {
	return s == StatusReceived
}

// SubmissionStatus mirrors the subset of kitchen workflow states a customer
// device cares about. PENDING submissions are the ones a rectify replaces.
type SubmissionStatus string

const (
	SubPending       SubmissionStatus = "PENDING"
	SubInPreparation SubmissionStatus = "IN_PREPARATION"
	SubReady         SubmissionStatus = "READY"
	SubServed        SubmissionStatus = "SERVED"
	SubCancelled     SubmissionStatus = "CANCELLED"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubPending, SubInPreparation, SubReady, SubServed, SubCancelled:
		return true
	}
	return false
}
