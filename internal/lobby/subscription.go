package lobby

import (
	"fmt"

	"github.com/bulleador/lobbysync/internal/model"
)

// MapSubscriptionStatus translates a transport subscription signal into a
// leave reason. left is false when the signal does not end the lobby.
func MapSubscriptionStatus(status model.SubscriptionStatus) (reason model.LeaveReason, left bool, err error) {
	switch status {
	case model.Subscribed:
		return "", false, nil
	case model.UnsubscribedMemberLeft:
		return model.LeaveMemberLeft, true, nil
	case model.UnsubscribedMemberRemoved:
		return model.LeaveMemberKicked, true, nil
	case model.UnsubscribedLobbyDeleted:
		return model.LeaveLobbyClosed, true, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrUnknownSubscriptionStatus, status)
	}
}
