package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ProposalStatus
		ok       bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExecuting, true},
		{StatusApproved, StatusExecuting, true},
		{StatusApproved, StatusExpired, true},
		{StatusExecuting, StatusExecuted, true},
		{StatusExecuting, StatusFailed, true},
		{StatusFailed, StatusPending, true}, // explicit re-queue edge

		{StatusExecuted, StatusExecuting, false},
		{StatusExecuted, StatusPending, false},
		{StatusRejected, StatusPending, false},
		{StatusExpired, StatusApproved, false},
		{StatusApproved, StatusExecuted, false}, // no skipping EXECUTING
		{StatusExecuting, StatusApproved, false},
		{StatusFailed, StatusExecuting, false}, // re-queue goes through PENDING
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusExecuted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.False(t, StatusExecuting.IsTerminal())
	// FAILED is re-queueable, hence not terminal.
	assert.False(t, StatusFailed.IsTerminal())
}
