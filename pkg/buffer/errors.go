package buffer

import "errors"

var (
	// ErrLatePacket is returned by Insert when a sequence number falls
	// behind the store's current base_index and cannot be accepted.
	ErrLatePacket = errors.New("buffer: packet index precedes base_index, dropped")

	// ErrDuplicatePacket is returned by Insert for an index already held.
	ErrDuplicatePacket = errors.New("buffer: duplicate packet index")
)
