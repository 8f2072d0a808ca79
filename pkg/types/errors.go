package types

import "errors"

var (
	// ErrPendingArtRef means an artifact this rollout depends on has no
	// instance available to claim yet
	ErrPendingArtRef = errors.New("pending artifact reference")

	// ErrPendingAccount means an account pool this rollout depends on is
	// exhausted or not yet provisioned
	ErrPendingAccount = errors.New("pending account")
)

// StatusForError classifies a dispatch error into the rollout status it
// leaves behind. A nil error means the dispatch went through.
func StatusForError(err error) RolloutStatus {
	switch {
	case err == nil:
		return RolloutRunning
	case errors.Is(err, ErrPendingArtRef):
		return RolloutPendingArtRef
	case errors.Is(err, ErrPendingAccount):
		return RolloutPendingAccount
	default:
		return RolloutFailed
	}
}
