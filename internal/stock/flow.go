// Package stock implements the scan-resolve-prompt-commit cycle that turns
// a scanned label into an inbound or outbound stock movement.
package stock

import (
	"context"
	"errors"
	"fmt"
	"log"

	"smartqr/internal/models"
	"smartqr/internal/scan"
	"smartqr/internal/store"
)

// State is a step of the adjustment cycle.
type State int

const (
	Idle State = iota
	Scanning
	Resolving
	Prompting
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Resolving:
		return "resolving"
	case Prompting:
		return "prompting"
	case Committing:
		return "committing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Kind classifies how a cycle ended.
type Kind int

const (
	Committed Kind = iota
	RecognitionFailed
	NotRegistered
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Committed:
		return "committed"
	case RecognitionFailed:
		return "recognition_failed"
	case NotRegistered:
		return "not_registered"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is what the user is told at the end of a cycle.
type Outcome struct {
	Kind     Kind        `json:"-"`
	Status   string      `json:"status"`
	ItemCode string      `json:"item_code,omitempty"`
	Item     models.Item `json:"item"`
	Delta    int         `json:"delta"`
	Reason   string      `json:"reason,omitempty"`
}

// Message renders the outcome as the notice shown to the operator.
func (o Outcome) Message() string {
	switch o.Kind {
	case Committed:
		return fmt.Sprintf("%s 재고가 %d으로 변경되었습니다.", o.Item.ItemName, o.Item.TotalStock)
	case RecognitionFailed:
		return "QR 코드 인식에 실패했습니다."
	case NotRegistered:
		return fmt.Sprintf("등록된 물품(%s)이 없습니다.", o.ItemCode)
	}
	return ""
}

func outcome(k Kind) Outcome {
	return Outcome{Kind: k, Status: k.String()}
}

// Pending is a resolved item waiting for the operator's delta.
type Pending struct {
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Current  int    `json:"current"`
}

// Scanner produces one decoded label, or nil when nothing was recognised.
type Scanner interface {
	Scan(ctx context.Context) (*models.Payload, error)
}

// Prompter asks the operator for a signed delta. ok is false when the
// prompt was dismissed.
type Prompter interface {
	PromptDelta(ctx context.Context, p Pending) (delta int, ok bool, err error)
}

// Store is the persistence the cycle needs.
type Store interface {
	GetItem(ctx context.Context, code string) (models.Item, error)
	Adjust(ctx context.Context, code string, delta int) (models.Item, error)
}

// Flow wires a scanner and a prompter to the store.
type Flow struct {
	Store    Store
	Scanner  Scanner
	Prompter Prompter

	// OnState observes every transition, ending with Idle.
	OnState func(State)
}

func (f *Flow) enter(s State) {
	if f.OnState != nil {
		f.OnState(s)
	}
}

// Run drives one full cycle. Every early exit leaves the store untouched.
// A non-nil error means a storage or device failure, not a user outcome.
func (f *Flow) Run(ctx context.Context) (Outcome, error) {
	defer f.enter(Idle)

	f.enter(Scanning)
	payload, err := f.Scanner.Scan(ctx)
	if err != nil {
		if errors.Is(err, scan.ErrMalformedPayload) {
			o := outcome(RecognitionFailed)
			o.Reason = err.Error()
			return o, nil
		}
		return Outcome{}, fmt.Errorf("scan: %w", err)
	}
	if payload == nil {
		return outcome(RecognitionFailed), nil
	}

	pending, o, err := f.resolve(ctx, payload)
	if err != nil {
		return Outcome{}, err
	}
	if o != nil {
		return *o, nil
	}

	f.enter(Prompting)
	delta, ok, err := f.Prompter.PromptDelta(ctx, pending)
	if err != nil {
		return Outcome{}, fmt.Errorf("prompt: %w", err)
	}
	if !ok {
		return outcome(Cancelled), nil
	}

	return f.commit(ctx, pending.ItemCode, delta)
}

// Resolve looks up a scanned payload. It returns an Outcome instead of a
// Pending when the code is not registered. On success the cycle is left
// in Prompting for the caller to finish with Commit.
func (f *Flow) Resolve(ctx context.Context, payload *models.Payload) (*Pending, *Outcome, error) {
	if payload == nil {
		o := outcome(RecognitionFailed)
		return nil, &o, nil
	}
	p, o, err := f.resolve(ctx, payload)
	if err != nil || o != nil {
		f.enter(Idle)
		return nil, o, err
	}
	f.enter(Prompting)
	return &p, nil, nil
}

func (f *Flow) resolve(ctx context.Context, payload *models.Payload) (Pending, *Outcome, error) {
	f.enter(Resolving)
	item, err := f.Store.GetItem(ctx, payload.ItemCode)
	if errors.Is(err, store.ErrNotFound) {
		o := outcome(NotRegistered)
		o.ItemCode = payload.ItemCode
		return Pending{}, &o, nil
	}
	if err != nil {
		return Pending{}, nil, err
	}
	name := payload.ItemName
	if name == "" {
		name = item.ItemName
	}
	return Pending{ItemCode: item.ItemCode, ItemName: name, Current: item.TotalStock}, nil, nil
}

// Commit applies delta to code. It is the second half of a two-step
// front-end that prompts outside of Run.
func (f *Flow) Commit(ctx context.Context, code string, delta int) (Outcome, error) {
	defer f.enter(Idle)
	return f.commit(ctx, code, delta)
}

func (f *Flow) commit(ctx context.Context, code string, delta int) (Outcome, error) {
	f.enter(Committing)
	item, err := f.Store.Adjust(ctx, code, delta)
	if errors.Is(err, store.ErrNotFound) {
		// Cleared between resolve and commit.
		o := outcome(NotRegistered)
		o.ItemCode = code
		return o, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("commit %s: %w", code, err)
	}
	log.Printf("stock: adjusted %s by %+d -> %d", code, delta, item.TotalStock)
	o := outcome(Committed)
	o.ItemCode = code
	o.Item = item
	o.Delta = delta
	return o, nil
}
