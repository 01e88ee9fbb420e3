package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition means the action is not defined for the current state.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrUnauthorized means the actor's role may not perform the action.
	ErrUnauthorized = errors.New("unauthorized transition")
	// ErrInvalidParams means a legal, authorised action lacks required input.
	ErrInvalidParams = errors.New("invalid transition params")
)

// TransitionError describes a rejected transition. errors.Is matches its Kind.
type TransitionError struct {
	Kind   error
	Entity Entity
	From   State
	Action Action
	Role   Role
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s %s from %s", e.Kind, e.Entity, e.Action, e.From.Status)
	if e.Role != "" {
		msg += fmt.Sprintf(" as %s", e.Role)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

func reject(kind error, req Request, reason string) error {
	return &TransitionError{
		Kind:   kind,
		Entity: req.Entity,
		From:   req.Current,
		Action: req.Action,
		Role:   req.Actor.Role,
		Reason: reason,
	}
}
