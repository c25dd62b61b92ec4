package models

import (
	"errors"
	"fmt"
)

type ChallengeStatus string

const (
	ChallengeStatusDraft     ChallengeStatus = "draft"
	ChallengeStatusUpcoming  ChallengeStatus = "upcoming"
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// ChallengeEvent drives a challenge from one status to the next.
type ChallengeEvent string

const (
	ChallengeEventPublish  ChallengeEvent = "publish"
	ChallengeEventStart    ChallengeEvent = "start"
	ChallengeEventComplete ChallengeEvent = "complete"
	ChallengeEventCancel   ChallengeEvent = "cancel"
)

var ErrInvalidTransition = errors.New("invalid challenge status transition")

// challengeTransitions is the complete lifecycle. Statuses without a row are
// terminal.
var challengeTransitions = map[ChallengeStatus]map[ChallengeEvent]ChallengeStatus{
	ChallengeStatusDraft: {
		ChallengeEventPublish: ChallengeStatusUpcoming,
		ChallengeEventCancel:  ChallengeStatusCancelled,
	},
	ChallengeStatusUpcoming: {
		ChallengeEventStart:    ChallengeStatusActive,
		ChallengeEventComplete: ChallengeStatusCompleted,
		ChallengeEventCancel:   ChallengeStatusCancelled,
	},
	ChallengeStatusActive: {
		ChallengeEventComplete: ChallengeStatusCompleted,
		ChallengeEventCancel:   ChallengeStatusCancelled,
	},
}

// Valid reports whether s is a known status.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeStatusDraft, ChallengeStatusUpcoming, ChallengeStatusActive,
		ChallengeStatusCompleted, ChallengeStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no event can leave s.
func (s ChallengeStatus) IsTerminal() bool {
	return len(challengeTransitions[s]) == 0
}

// Joinable reports whether participants may enroll in this status.
func (s ChallengeStatus) Joinable() bool {
	return s == ChallengeStatusUpcoming || s == ChallengeStatusActive
}

// Next applies ev to s.
func (s ChallengeStatus) Next(ev ChallengeEvent) (ChallengeStatus, error) {
	next, ok := challengeTransitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
	}
	return next, nil
}

// EventTo returns the event that moves s to target.
func (s ChallengeStatus) EventTo(target ChallengeStatus) (ChallengeEvent, error) {
	for ev, next := range challengeTransitions[s] {
		if next == target {
			return ev, nil
		}
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
}
