package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// PhoneState is a raw transition state as reported by the platform.
type PhoneState string

const (
	PhoneIdle    PhoneState = "idle"
	PhoneRinging PhoneState = "ringing"
	PhoneOffhook PhoneState = "offhook"
)

// StateSignal is one raw telephony transition. Numbers are frequently
// absent on the transition that matters.
type StateSignal struct {
	State  PhoneState
	Number string
	At     time.Time
}

// OriginatedSignal carries the dialed number for an outgoing call, delivered
// separately from the state transitions.
type OriginatedSignal struct {
	Number string
	At     time.Time
}

// Sink receives normalized lifecycle events. The session tracker implements
// it.
type Sink interface {
	Ringing(number string, direction models.Direction, at time.Time) (models.CallSession, bool)
	Connected(number string, direction models.Direction, at time.Time) (models.CallSession, bool)
	Ended(number string, at time.Time) (models.CallSession, bool)
	SetContactName(number, name string, override bool)
}

// Config tunes the normalizer.
type Config struct {
	// CallLogWindow bounds how far back the call log is consulted for an
	// outgoing number.
	CallLogWindow time.Duration
}

// Normalizer turns raw, noisy state transitions into a de-duplicated stream
// of lifecycle events. It owns the "what was the last raw state" memory the
// platform does not provide, and resolves the ambiguous idle→offhook
// transition into a synthetic outgoing RINGING+CONNECTED pair.
type Normalizer struct {
	sink     Sink
	callLog  CallLogReader
	local    ContactDirectory
	remote   ContactDirectory
	cfg      Config
	logger   logging.Logger
	dispatch func(func())

	// mu guards the transition memory below. Signals arrive on arbitrary
	// request goroutines; critical sections stay short and the sink's own
	// locking handles the session table.
	mu               sync.Mutex
	lastState        PhoneState
	activeNumber     string
	originatedNumber string
	originatedAt     time.Time
}

// NewNormalizer builds a normalizer. local and remote directories may be
// nil. dispatch runs contact resolution off the signal path; nil means
// plain goroutines.
func NewNormalizer(sink Sink, callLog CallLogReader, local, remote ContactDirectory, cfg Config, logger logging.Logger) *Normalizer {
	if cfg.CallLogWindow == 0 {
		cfg.CallLogWindow = 30 * time.Second
	}
	return &Normalizer{
		sink:     sink,
		callLog:  callLog,
		local:    local,
		remote:   remote,
		cfg:      cfg,
		logger:   logger,
		dispatch: func(fn func()) { go fn() },
	}
}

// HandleOriginated records the dialed number so the following idle→offhook
// transition can attribute the call without a call log round trip.
func (n *Normalizer) HandleOriginated(ctx context.Context, sig OriginatedSignal) {
	if sig.Number == "" {
		return
	}
	n.mu.Lock()
	n.originatedNumber = sig.Number
	n.originatedAt = sig.At
	n.mu.Unlock()
	n.logger.WithFields(logging.Fields{
		"phone_number": sig.Number,
	}).Debug("Outgoing call originated")
}

// HandleState consumes one raw transition. Safe for concurrent callers:
// the transition memory is mutex-guarded and the sink does its own locking.
func (n *Normalizer) HandleState(ctx context.Context, sig StateSignal) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Same state reported twice in a row is noise.
	if sig.State == n.lastState {
		return nil
	}
	prev := n.lastState
	n.lastState = sig.State

	switch sig.State {
	case PhoneRinging:
		return n.handleRinging(ctx, sig)
	case PhoneOffhook:
		return n.handleOffhook(ctx, sig, prev)
	case PhoneIdle:
		return n.handleIdle(sig)
	default:
		return fmt.Errorf("unknown phone state %q", sig.State)
	}
}

func (n *Normalizer) handleRinging(ctx context.Context, sig StateSignal) error {
	if sig.Number == "" {
		n.logger.Warn("Ringing signal without a number, dropped")
		return nil
	}
	n.activeNumber = sig.Number
	n.sink.Ringing(sig.Number, models.DirectionIncoming, sig.At)
	n.resolveContact(ctx, sig.Number)
	return nil
}

func (n *Normalizer) handleOffhook(ctx context.Context, sig StateSignal, prev PhoneState) error {
	if prev == PhoneRinging {
		// User answered the incoming call.
		number := sig.Number
		if number == "" {
			number = n.activeNumber
		}
		if number == "" {
			n.logger.Warn("Offhook after ringing with no tracked number, dropped")
			return nil
		}
		n.activeNumber = number
		n.sink.Connected(number, models.DirectionIncoming, sig.At)
		return nil
	}

	// idle→offhook: an originated call is already connecting by the time
	// this fires, so synthesize RINGING immediately followed by CONNECTED
	// with zero ringing duration.
	number, err := n.resolveOutgoingNumber(ctx, sig)
	if err != nil {
		return err
	}
	if number == "" {
		n.logger.Warn("Outgoing call with unresolvable number, dropped")
		return nil
	}
	n.activeNumber = number
	n.sink.Ringing(number, models.DirectionOutgoing, sig.At)
	n.sink.Connected(number, models.DirectionOutgoing, sig.At)
	n.resolveContact(ctx, number)
	return nil
}

func (n *Normalizer) handleIdle(sig StateSignal) error {
	number := n.activeNumber
	if number == "" && sig.Number != "" {
		number = sig.Number
	}
	if number == "" {
		return nil
	}
	n.activeNumber = ""
	n.originatedNumber = ""
	n.sink.Ended(number, sig.At)
	return nil
}

// resolveOutgoingNumber prefers the signal's own number, then a fresh
// originated-call hint, then the most recent outgoing call log entry within
// the recency window.
func (n *Normalizer) resolveOutgoingNumber(ctx context.Context, sig StateSignal) (string, error) {
	if sig.Number != "" {
		return sig.Number, nil
	}
	if n.originatedNumber != "" && sig.At.Sub(n.originatedAt) <= n.cfg.CallLogWindow {
		return n.originatedNumber, nil
	}
	if n.callLog == nil {
		return "", nil
	}
	number, err := n.callLog.MostRecentOutgoing(ctx, sig.At.Add(-n.cfg.CallLogWindow))
	if err != nil {
		n.logger.WithError(err).Warn("Call log lookup failed")
		return "", nil
	}
	return number, nil
}

// resolveContact fills in a display name off the signal path. The local
// directory provides a first answer (or a placeholder), then the remote
// directory overrides it when it knows better.
func (n *Normalizer) resolveContact(ctx context.Context, number string) {
	n.dispatch(func() {
		name := ""
		if n.local != nil {
			if resolved, err := n.local.DisplayName(ctx, number); err == nil {
				name = resolved
			}
		}
		if name == "" {
			name = "Incoming Call - " + number
		}
		n.sink.SetContactName(number, name, false)

		if n.remote == nil {
			return
		}
		if resolved, err := n.remote.DisplayName(ctx, number); err == nil && resolved != "" {
			n.sink.SetContactName(number, resolved, true)
		}
	})
}
