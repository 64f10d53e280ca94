package jackpot

import "errors"

var (
	// ErrInvalidStake rejects non-positive or malformed bet amounts. No state changes.
	ErrInvalidStake = errors.New("invalid stake amount")
	// ErrNoActiveTickets is the no-op settlement of an empty round.
	ErrNoActiveTickets = errors.New("no active tickets")
	// ErrRoundLocked rejects bets while the round is being settled.
	ErrRoundLocked = errors.New("round is locked for settlement")
	// ErrConfigValidation rejects admin input outside the accepted ranges.
	ErrConfigValidation = errors.New("invalid bias configuration")

	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomStopped    = errors.New("room is stopped")
	ErrWinnerNotFound = errors.New("winner not found in history")
)
