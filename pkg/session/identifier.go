package session

import "github.com/google/uuid"

// ID is the opaque per-client-instance session identifier. It is generated
// exactly once at process start, is immutable, and is attached to every
// request; there is no hidden global.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}
