package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNeeded(t *testing.T) {
	require.True(t, IsNeeded([]string{SEQUENCER}, []string{RPC, SEQUENCER}))
	require.False(t, IsNeeded([]string{SEQUENCER}, []string{RPC}))
	require.False(t, IsNeeded([]string{RPC}, nil))
}
