package session

import "errors"

var (
	// ErrAlreadyDeployed is returned by a deploy request while the local avatar is alive.
	ErrAlreadyDeployed = errors.New("avatar already deployed")
	// ErrNotPlaying is returned by a deploy request outside the Playing phase.
	ErrNotPlaying = errors.New("room is not in the playing phase")
	// ErrRespawnPending is returned by a deploy request while the respawn countdown runs.
	ErrRespawnPending = errors.New("respawn countdown pending")
	// ErrNotJoined is returned before the local player record has been announced.
	ErrNotJoined = errors.New("local peer has not joined the room yet")
	// ErrNotDeployed is returned by avatar actions while no local avatar exists.
	ErrNotDeployed = errors.New("avatar not deployed")
	// ErrStopped is returned once the session has left the room.
	ErrStopped = errors.New("session stopped")
	// ErrBusy is returned by Submit when the command queue is full.
	ErrBusy = errors.New("command queue full")
)
