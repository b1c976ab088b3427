package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a, b := New("sale"), New("sale")
	assert.NotEqual(t, a, b)

	require.True(t, strings.HasPrefix(a, "sale-"))
	_, err := uuid.Parse(strings.TrimPrefix(a, "sale-"))
	assert.NoError(t, err)
}
