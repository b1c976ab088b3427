package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns an opaque identifier such as "sale-5f0c...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
