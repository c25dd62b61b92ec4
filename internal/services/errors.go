package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

type ErrorKind int

const (
	// KindRule is a business-rule violation the caller can fix.
	KindRule ErrorKind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
)

// DomainError is an expected failure with a user-facing message. Two
// DomainErrors match under errors.Is when their codes match.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func ruleError(code, msg string) *DomainError {
	return &DomainError{Kind: KindRule, Code: code, Message: msg}
}

// notFound builds a not-found error naming the entity, matching ErrNotFound.
func notFound(entity string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: ErrNotFound.Code, Message: entity + " not found"}
}

var (
	ErrNotFound        = &DomainError{Kind: KindNotFound, Code: "not_found", Message: "Resource not found"}
	ErrForbidden       = &DomainError{Kind: KindForbidden, Code: "forbidden", Message: "Not authorized to access this resource"}
	ErrInvalidLogin    = &DomainError{Kind: KindUnauthorized, Code: "invalid_credentials", Message: "Invalid credentials"}
	ErrAccountInactive = &DomainError{Kind: KindForbidden, Code: "account_inactive", Message: "Account is deactivated"}

	ErrChallengeFull            = ruleError("challenge_full", "Challenge is full")
	ErrChallengeNotJoinable     = ruleError("challenge_not_joinable", "This challenge is not open for registration")
	ErrChallengeEnded           = &DomainError{Kind: KindRule, Code: ErrChallengeNotJoinable.Code, Message: "This challenge has already ended"}
	ErrChallengeCancelled       = &DomainError{Kind: KindRule, Code: ErrChallengeNotJoinable.Code, Message: "This challenge has been cancelled"}
	ErrAlreadyParticipant       = ruleError("already_participant", "You are already a participant in this challenge")
	ErrMissingAccountInfo       = ruleError("missing_account_info", "MT5 account information is required")
	ErrNotAParticipant          = ruleError("not_a_participant", "You are not a participant in this challenge")
	ErrChallengeHasParticipants = ruleError("challenge_has_participants", "Cannot delete challenge with participants")
	ErrChallengeClosed          = ruleError("challenge_closed", "Participants cannot leave a challenge that has ended")
	ErrInvalidTransition        = ruleError("invalid_transition", "Invalid challenge status transition")

	ErrEmailTaken          = ruleError("user_exists", "User already exists")
	ErrUserHasObligations  = ruleError("user_has_obligations", "Cannot delete a user with active subscriptions or challenge participations")
	ErrMT5CredentialsEmpty = ruleError("mt5_credentials_missing", "User has no MT5 credentials configured")

	ErrPlanFull              = ruleError("plan_full", "This plan is full")
	ErrPlanInactive          = ruleError("plan_inactive", "This plan is no longer available")
	ErrPlanHasSubscribers    = ruleError("plan_has_subscribers", "Cannot delete plan with active subscribers")
	ErrDuplicateSubscription = ruleError("duplicate_subscription", "You already have an active subscription to this plan")
	ErrAlreadyCancelled      = ruleError("already_cancelled", "Subscription is already cancelled")
	ErrSubscriptionInactive  = ruleError("subscription_inactive", "Subscription is not active")
	ErrSessionLimit          = ruleError("session_limit", "Session limit reached for this subscription")

	ErrPackageFull       = ruleError("package_full", "This package is currently full")
	ErrPackageInactive   = ruleError("package_inactive", "This package is no longer available")
	ErrPackageHasClients = ruleError("package_has_clients", "Cannot delete package with active services")
	ErrServiceNotPayable = ruleError("service_not_payable", "This service is not awaiting payment")

	ErrPaymentFailed        = ruleError("payment_failed", "Payment failed")
	ErrPaymentNotRefundable = ruleError("payment_not_refundable", "Only completed payments can be refunded")

	ErrUserMessagesDisabled = &DomainError{Kind: KindForbidden, Code: "user_messages_disabled", Message: "Only admins can post in this chatbox"}
	ErrNoChatboxAccess      = &DomainError{Kind: KindForbidden, Code: "no_chatbox_access", Message: "An active subscription is required to access this chatbox"}

	ErrNotificationSent = ruleError("notification_sent", "Notification has already been sent")
	ErrTicketClosed     = ruleError("ticket_closed", "Cannot add messages to a closed ticket")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

func validationError(msg string, fields ...string) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

// ruleWithMessage keeps the code of base but replaces the message.
func ruleWithMessage(base *DomainError, msg string) *DomainError {
	return &DomainError{Kind: base.Kind, Code: base.Code, Message: msg}
}

// mapNotFound converts a missing-record error into a typed not-found error.
func mapNotFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity)
	}
	return err
}
