package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulleador/lobbysync/internal/model"
)

func TestPendingBuffer_DrainSortsAndClears(t *testing.T) {
	var b PendingBuffer
	for _, n := range []uint64{3, 1, 2} {
		b.Enqueue(model.ChangeRecord{ChangeNumber: n})
	}
	require.Equal(t, 3, b.Len())

	got := b.DrainInOrder()
	numbers := make([]uint64, 0, len(got))
	for _, r := range got {
		numbers = append(numbers, r.ChangeNumber)
	}
	assert.Equal(t, []uint64{1, 2, 3}, numbers)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.DrainInOrder(), "records are released exactly once")
}

func TestPendingBuffer_TiesKeepArrivalOrder(t *testing.T) {
	var b PendingBuffer
	b.Enqueue(model.ChangeRecord{ChangeNumber: 2, LobbyData: map[string]string{"n": "first"}})
	b.Enqueue(model.ChangeRecord{ChangeNumber: 1})
	b.Enqueue(model.ChangeRecord{ChangeNumber: 2, LobbyData: map[string]string{"n": "second"}})

	got := b.DrainInOrder()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[1].LobbyData["n"])
	assert.Equal(t, "second", got[2].LobbyData["n"])
}

func TestPendingBuffer_Reset(t *testing.T) {
	var b PendingBuffer
	b.Enqueue(model.ChangeRecord{ChangeNumber: 1})
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestMapSubscriptionStatus(t *testing.T) {
	cases := []struct {
		status     model.SubscriptionStatus
		wantReason model.LeaveReason
		wantLeft   bool
	}{
		{model.Subscribed, "", false},
		{model.UnsubscribedMemberLeft, model.LeaveMemberLeft, true},
		{model.UnsubscribedMemberRemoved, model.LeaveMemberKicked, true},
		{model.UnsubscribedLobbyDeleted, model.LeaveLobbyClosed, true},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			reason, left, err := MapSubscriptionStatus(tc.status)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLeft, left)
			assert.Equal(t, tc.wantReason, reason)
		})
	}

	_, _, err := MapSubscriptionStatus(model.SubscriptionStatus(42))
	assert.ErrorIs(t, err, ErrUnknownSubscriptionStatus)
	_, _, err = MapSubscriptionStatus(0)
	assert.ErrorIs(t, err, ErrUnknownSubscriptionStatus)
}
