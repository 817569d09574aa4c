package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFleet_AddRejectsDuplicateIDs(t *testing.T) {
	f := NewFleet(0, zerolog.Nop())
	require.NoError(t, f.Add(newMockSession("bot1", "5511900000001")))
	require.NoError(t, f.Add(newMockSession("bot2", "")))

	assert.Error(t, f.Add(newMockSession("bot1", "5511900000009")))
	assert.Len(t, f.Sessions(), 2)
	assert.Equal(t, []string{"5511900000001"}, f.PeerNumbers())
	assert.NotNil(t, f.Get("bot2"))
	assert.Nil(t, f.Get("bot3"))
}

func TestFleet_PeerNumbersIncludeAliases(t *testing.T) {
	f := NewFleet(0, zerolog.Nop())
	bot1 := newMockSession("bot1", "ou_a1")
	bot1.info.Aliases = []string{"ou_b1", ""}
	require.NoError(t, f.Add(bot1))
	require.NoError(t, f.Add(newMockSession("bot2", "ou_b2")))

	assert.ElementsMatch(t, []string{"ou_a1", "ou_b1", "ou_b2"}, f.PeerNumbers())
}

func TestFleet_Status(t *testing.T) {
	f := NewFleet(0, zerolog.Nop())
	down := newMockSession("bot2", "5511900000002")
	down.connected = false
	require.NoError(t, f.Add(newMockSession("bot1", "5511900000001")))
	require.NoError(t, f.Add(down))

	status := f.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "bot1", status[0].ID)
	assert.True(t, status[0].Connected)
	assert.Equal(t, "5511900000002", status[1].PhoneNumber)
	assert.False(t, status[1].Connected)
}

func TestFleet_ShutdownAbandonsHangingSession(t *testing.T) {
	f := NewFleet(50*time.Millisecond, zerolog.Nop())

	stuck := newMockSession("stuck", "")
	release := make(chan struct{})
	defer close(release)
	stuck.shutdown = func(ctx context.Context) error {
		<-release
		return nil
	}

	closed := make(chan struct{})
	ok := newMockSession("ok", "")
	ok.shutdown = func(ctx context.Context) error {
		close(closed)
		return nil
	}

	failing := newMockSession("failing", "")
	failing.shutdown = func(ctx context.Context) error { return errors.New("socket already closed") }

	require.NoError(t, f.Add(stuck))
	require.NoError(t, f.Add(ok))
	require.NoError(t, f.Add(failing))

	start := time.Now()
	f.Shutdown(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-closed:
	default:
		t.Fatal("healthy session was not shut down")
	}
}
