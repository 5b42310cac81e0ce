package poll

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// NewID returns a random v4 UUID in base58, short enough for share links.
func NewID() string {
	id := uuid.New()
	return base58.Encode(id[:])
}
