package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryGateway keeps intents in process. It backs local development when
// no processor key is configured, and tests.
type MemoryGateway struct {
	mu      sync.Mutex
	intents map[string]*Intent
	byKey   map[string]string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		intents: make(map[string]*Intent),
		byKey:   make(map[string]string),
	}
}

func (g *MemoryGateway) CreateIntent(_ context.Context, p CreateIntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		cp := *g.intents[id]
		return &cp, nil
	}

	id := "pi_" + uuid.NewString()
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       IntentRequiresPaymentMethod,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
	}
	g.intents[id] = intent
	if p.IdempotencyKey != "" {
		g.byKey[p.IdempotencyKey] = id
	}
	cp := *intent
	return &cp, nil
}

func (g *MemoryGateway) GetIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

// ConfirmIntent marks the intent as paid by card.
func (g *MemoryGateway) ConfirmIntent(_ context.Context, id string) (*Intent, error) {
	return g.SetStatus(id, IntentSucceeded)
}

// SetStatus forces an intent into status.
func (g *MemoryGateway) SetStatus(id string, status IntentStatus) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	intent.Status = status
	switch status {
	case IntentSucceeded:
		intent.PaymentMethod = "card"
		intent.ChargeID = "ch_" + id
		intent.FailureMessage = ""
	case IntentRequiresPaymentMethod:
		intent.FailureMessage = "Your card was declined."
	}
	cp := *intent
	return &cp, nil
}

func (g *MemoryGateway) Refund(_ context.Context, intentID string, amountCents int64) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.Status != IntentSucceeded {
		return nil, fmt.Errorf("intent %s is not refundable in status %s", intentID, intent.Status)
	}
	if amountCents <= 0 || amountCents > intent.AmountCents {
		amountCents = intent.AmountCents
	}
	return &Refund{ID: "re_" + uuid.NewString(), AmountCents: amountCents, Status: "succeeded"}, nil
}
