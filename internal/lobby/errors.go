package lobby

import "errors"

var ErrAlreadyInitialised = errors.New("lobby already initialised")
var ErrNotInLobby = errors.New("not in lobby")
var ErrNotOwner = errors.New("only the lobby owner can do that")
var ErrOwnerCannotReady = errors.New("lobby owner cannot set ready status")
var ErrUnknownSubscriptionStatus = errors.New("unknown subscription status")
var ErrSnapshotFetchFailed = errors.New("lobby snapshot fetch failed")
var ErrTransportUnavailable = errors.New("lobby transport unavailable")
