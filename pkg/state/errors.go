package state

import "errors"

// Sentinel errors for the realtime core. Handlers map these onto typed error
// events sent back to the originating connection only.
var (
	ErrInvalidAuthData   = errors.New("authenticate requires userId and role")
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidRoomData   = errors.New("join requires roomId and userId")
	ErrInvalidStatus     = errors.New("unrecognized presence status")
	ErrUnknownRoom       = errors.New("room not found")
	ErrUnknownConnection = errors.New("connection not found")
)
