package catalog

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomConflict    = errors.New("room with this name already exists")
	ErrInvalidRoom     = errors.New("invalid room layout")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session overlaps another session in the room")
	ErrInvalidSession  = errors.New("invalid session")
)
