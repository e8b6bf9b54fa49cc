package platform

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier for chat sessions and request correlation.
func NewID() string {
	return uuid.New().String()
}
