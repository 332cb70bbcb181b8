// Package broker defines the execution-venue surface the bracket manager
// drives. Submit and Cancel are fire-and-forget; acknowledgments arrive later
// as Events through the engine's serialized queue.
package broker

import (
	"context"
	"time"
)

type OrderType int

const (
	Market OrderType = iota
	Limit
	Stop
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// OrderSpec is one order leg as the venue sees it. Units are signed: positive
// buys, negative sells. All working orders carry day validity; the venue
// expires them at the end of the session in which they were submitted.
type OrderSpec struct {
	LegID      string
	ParentID   string // contingent legs activate only after this leg fills
	Instrument string
	Units      int
	Type       OrderType
	Price      float64 // ignored for Market
}

type EventKind int

const (
	EventFill EventKind = iota
	EventCancelAck
	EventReject
	EventMarginBlock
)

func (k EventKind) String() string {
	switch k {
	case EventFill:
		return "fill"
	case EventCancelAck:
		return "cancel-ack"
	case EventReject:
		return "reject"
	case EventMarginBlock:
		return "margin-block"
	}
	return "unknown"
}

// Event is one venue acknowledgment. ID is unique per event so duplicate or
// replayed deliveries can be detected and dropped.
type Event struct {
	ID     string
	LegID  string
	Kind   EventKind
	Price  float64 // fill price when Kind == EventFill
	Units  int     // signed filled units when Kind == EventFill
	Time   time.Time
	Reason string
}

type Execution interface {
	// Submit registers order legs with the venue. An error here is treated
	// as unrecoverable connectivity failure by the caller.
	Submit(ctx context.Context, specs []OrderSpec) error

	// Cancel requests cancellation of a working leg. Canceling an unknown or
	// already-terminal leg is a no-op.
	Cancel(ctx context.Context, legID string) error

	// AccountValue returns current account equity in account currency.
	AccountValue(ctx context.Context) (float64, error)
}
