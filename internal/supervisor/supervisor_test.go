package supervisor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everest-core/manager/internal/logging"
)

func TestSpawnTracksLiveWorker(t *testing.T) {
	s := New(logging.Nop{})
	cmd := exec.Command("sleep", "5")

	h, err := s.Spawn("pm_1", KindNative, cmd)
	require.NoError(t, err)
	defer s.TeardownAll(context.Background())

	assert.NotZero(t, h.PID)
	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "pm_1", live[0].InstanceID)
}

func TestSpawnFailureWrapsStartError(t *testing.T) {
	s := New(logging.Nop{})
	cmd := exec.Command("/definitely/not/a/real/binary")

	_, err := s.Spawn("pm_1", KindNative, cmd)
	require.Error(t, err)
	var target *WorkerSpawnFailed
	assert.ErrorAs(t, err, &target)
}

func TestTeardownAllSignalsAndWaits(t *testing.T) {
	s := New(logging.Nop{})
	cmd := exec.Command("sleep", "30")

	_, err := s.Spawn("pm_1", KindNative, cmd)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.TeardownAll(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("TeardownAll did not return in time")
	}

	assert.Empty(t, s.Live())
}

func TestRunReturnsOnWorkerExit(t *testing.T) {
	s := New(logging.Nop{})
	cmd := exec.Command("sh", "-c", "exit 1")

	_, err := s.Spawn("pm_1", KindNative, cmd)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.Error(t, err)
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	s := New(logging.Nop{})
	cmd := exec.Command("sleep", "30")
	_, err := s.Spawn("pm_1", KindNative, cmd)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Live())
}
