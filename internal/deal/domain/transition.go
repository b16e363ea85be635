package domain

import (
	"errors"
	"fmt"

	"github.com/mngrhq/mngr/internal/identity"
)

// Status is the deal lifecycle state. paid, rejected and cancelled are
// terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaid       Status = "paid"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid_status")

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusInProgress,
		StatusCompleted, StatusPaid, StatusRejected, StatusCancelled:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// transitions is the role-gated edge set. Everything not listed is denied;
// in particular completed -> paid is reserved for settlement and admin
// override, never a direct API transition.
var transitions = map[identity.Role]map[Status][]Status{
	identity.RoleCreator: {
		StatusPending:    {StatusAccepted, StatusRejected},
		StatusAccepted:   {StatusInProgress, StatusRejected},
		StatusInProgress: {StatusCompleted},
	},
	identity.RoleBrand: {
		StatusPending: {StatusCancelled},
	},
}

// CanTransition reports whether role may move a deal from one status to
// another. It is total over all role/status pairs.
func CanTransition(role identity.Role, from, to Status) bool {
	for _, allowed := range transitions[role][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionError reports a denied edge with enough detail for the caller
// to render the attempted move.
type TransitionError struct {
	Role identity.Role
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: %s may not move %s -> %s", e.Role, e.From, e.To)
}

var ErrInvalidTransition = errors.New("invalid_transition")

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
