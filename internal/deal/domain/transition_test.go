package domain_test

import (
	"errors"
	"testing"

	"github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionAllowedEdges(t *testing.T) {
	allowed := []struct {
		role identity.Role
		from domain.Status
		to   domain.Status
	}{
		{identity.RoleCreator, domain.StatusPending, domain.StatusAccepted},
		{identity.RoleCreator, domain.StatusPending, domain.StatusRejected},
		{identity.RoleCreator, domain.StatusAccepted, domain.StatusInProgress},
		{identity.RoleCreator, domain.StatusAccepted, domain.StatusRejected},
		{identity.RoleCreator, domain.StatusInProgress, domain.StatusCompleted},
		{identity.RoleBrand, domain.StatusPending, domain.StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, domain.CanTransition(tc.role, tc.from, tc.to),
			"%s should move %s -> %s", tc.role, tc.from, tc.to)
	}
}

func TestCanTransitionDeniesEverythingElse(t *testing.T) {
	statuses := []domain.Status{
		domain.StatusPending, domain.StatusAccepted, domain.StatusInProgress,
		domain.StatusCompleted, domain.StatusPaid, domain.StatusRejected, domain.StatusCancelled,
	}

	allowed := map[identity.Role]map[domain.Status]map[domain.Status]bool{
		identity.RoleCreator: {
			domain.StatusPending:    {domain.StatusAccepted: true, domain.StatusRejected: true},
			domain.StatusAccepted:   {domain.StatusInProgress: true, domain.StatusRejected: true},
			domain.StatusInProgress: {domain.StatusCompleted: true},
		},
		identity.RoleBrand: {
			domain.StatusPending: {domain.StatusCancelled: true},
		},
	}

	for _, role := range []identity.Role{identity.RoleBrand, identity.RoleCreator, identity.RoleAdmin} {
		for _, from := range statuses {
			for _, to := range statuses {
				got := domain.CanTransition(role, from, to)
				want := allowed[role][from][to]
				assert.Equal(t, want, got, "%s: %s -> %s", role, from, to)
			}
		}
	}
}

func TestCanTransitionTerminalStatesHaveNoExits(t *testing.T) {
	statuses := []domain.Status{
		domain.StatusPending, domain.StatusAccepted, domain.StatusInProgress,
		domain.StatusCompleted, domain.StatusPaid, domain.StatusRejected, domain.StatusCancelled,
	}
	for _, from := range []domain.Status{domain.StatusPaid, domain.StatusRejected, domain.StatusCancelled} {
		assert.True(t, from.Terminal())
		for _, role := range []identity.Role{identity.RoleBrand, identity.RoleCreator, identity.RoleAdmin} {
			for _, to := range statuses {
				assert.False(t, domain.CanTransition(role, from, to), "%s: %s -> %s", role, from, to)
			}
		}
	}
}

func TestCompletedToPaidNeverDirect(t *testing.T) {
	for _, role := range []identity.Role{identity.RoleBrand, identity.RoleCreator, identity.RoleAdmin} {
		assert.False(t, domain.CanTransition(role, domain.StatusCompleted, domain.StatusPaid))
	}
}

func TestParseStatus(t *testing.T) {
	s, err := domain.ParseStatus("in_progress")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, s)

	_, err = domain.ParseStatus("shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestTransitionErrorUnwraps(t *testing.T) {
	err := &domain.TransitionError{Role: identity.RoleBrand, From: domain.StatusAccepted, To: domain.StatusCancelled}
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Contains(t, err.Error(), "accepted")
	assert.Contains(t, err.Error(), "cancelled")
}
