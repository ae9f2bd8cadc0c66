package gudp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesConstants(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, DefaultHeartbeat, cfg.Heartbeat)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultIota, cfg.Iota)
	require.Equal(t, DefaultBufSize, cfg.BufSize)
	require.NotNil(t, cfg.Clock)
	require.NotNil(t, cfg.Logger)
	require.NotNil(t, cfg.Observer)
}

func TestBuilderOverridesAndDefaults(t *testing.T) {
	cfg := NewBuilder().
		WithHeartbeat(250 * time.Millisecond).
		WithBufSize(8192).
		Build()

	require.Equal(t, 250*time.Millisecond, cfg.Heartbeat)
	require.Equal(t, 8192, cfg.BufSize)
	// Untouched fields still fall back to the defaults.
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultIota, cfg.Iota)
}

func TestBuilderRegistersCallbacks(t *testing.T) {
	var sentCalled bool
	cfg := NewBuilder().
		OnPacketSent(func(local, peer net.Addr, payload []byte, seqNo uint32) {
			sentCalled = true
		}).
		Build()

	require.NotNil(t, cfg.OnPacketSent)
	cfg.OnPacketSent(nil, nil, nil, 0)
	require.True(t, sentCalled)
}
