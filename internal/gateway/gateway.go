// Package gateway talks to the card payment processor.
package gateway

import (
	"context"
	"errors"
)

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentCanceled              IntentStatus = "canceled"
)

// Failed reports whether the intent can no longer succeed without new input.
func (s IntentStatus) Failed() bool {
	return s == IntentRequiresPaymentMethod || s == IntentCanceled
}

var ErrIntentNotFound = errors.New("payment intent not found")

type Intent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	AmountCents    int64
	Currency       string
	PaymentMethod  string
	ChargeID       string
	CustomerID     string
	FailureMessage string
}

type CreateIntentParams struct {
	AmountCents    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	AmountCents int64
	Status      string
}

// PaymentGateway is the subset of processor operations the platform uses.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	ConfirmIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string, amountCents int64) (*Refund, error)
}
