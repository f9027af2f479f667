package observability

import (
	"fmt"

	"github.com/google/uuid"
)

// NewBufferID generates a unique identifier for one Engine/fixed-lag
// buffer instance, so logs from many concurrently-running buffers (as a
// Monte-Carlo harness would run) can be told apart.
func NewBufferID() string {
	return fmt.Sprintf("buf_%s", uuid.New().String())
}
