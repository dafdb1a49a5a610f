package reconciliation

import "payment-service/models"

// State is the pair of status columns an order carries.
type State struct {
	Payment     models.PaymentStatus
	Fulfillment models.OrderStatus
}

func StateOf(o *models.Order) State {
	return State{Payment: o.PaymentStatus, Fulfillment: o.Status}
}

type Event int

const (
	EventCaptured Event = iota
	EventFailed
	EventAbandoned
)

func (e Event) String() string {
	switch e {
	case EventCaptured:
		return "captured"
	case EventFailed:
		return "failed"
	case EventAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// EventForReason maps a failure reason onto its event.
func EventForReason(reason models.PaymentStatus) (Event, bool) {
	switch reason {
	case models.PaymentFailed:
		return EventFailed, true
	case models.PaymentAbandoned:
		return EventAbandoned, true
	}
	return 0, false
}

type Effect int

const (
	EffectDeductStock Effect = iota
	EffectRestock
	EffectClearIdempotencyKey
	EffectIssueInvoice
	EffectNotifyCustomerSuccess
	EffectNotifyAdmins
	EffectNotifyCustomerStatus
	EffectNotifyPrimaryAdmin
)

const (
	NoopAlreadyPaid   = "already_paid"
	NoopAlreadyFailed = "already_failed"
)

type Decision struct {
	Next             State
	AlreadyProcessed bool
	// NoopReason is set only when AlreadyProcessed is true.
	NoopReason string
	Effects    []Effect
}

func (d Decision) Has(effect Effect) bool {
	for _, e := range d.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// Transition decides what an event does to an order in state cur. It has no
// side effects; the engine applies Effects.
func Transition(cur State, ev Event) Decision {
	if cur.Payment == models.PaymentPaid {
		return Decision{Next: cur, AlreadyProcessed: true, NoopReason: NoopAlreadyPaid}
	}

	cancelled := cur.Fulfillment == models.OrderCancelled

	if ev == EventCaptured {
		d := Decision{
			Next: State{Payment: models.PaymentPaid, Fulfillment: models.OrderConfirmed},
			Effects: []Effect{
				EffectClearIdempotencyKey,
				EffectIssueInvoice,
				EffectNotifyCustomerSuccess,
				EffectNotifyAdmins,
			},
		}
		// Stock was released when the failure landed; take it back.
		if cancelled && cur.Payment.IsFailure() {
			d.Effects = append([]Effect{EffectDeductStock}, d.Effects...)
		}
		return d
	}

	if cancelled && cur.Payment.IsFailure() {
		return Decision{Next: cur, AlreadyProcessed: true, NoopReason: NoopAlreadyFailed}
	}

	reason := models.PaymentFailed
	if ev == EventAbandoned {
		reason = models.PaymentAbandoned
	}
	d := Decision{
		Next: State{Payment: reason, Fulfillment: models.OrderCancelled},
		Effects: []Effect{
			EffectClearIdempotencyKey,
			EffectNotifyCustomerStatus,
			EffectNotifyPrimaryAdmin,
		},
	}
	if !cancelled {
		d.Effects = append([]Effect{EffectRestock}, d.Effects...)
	}
	return d
}
