package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "req-3f1c...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// RequestID returns the incoming id when it is a well-formed token, otherwise a fresh one.
func RequestID(incoming string) string {
	if incoming != "" && len(incoming) <= 64 {
		if _, err := uuid.Parse(incoming); err == nil {
			return incoming
		}
	}
	return New("req")
}
