package supervisor

import (
	"context"
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/testing/assert"
)

func TestSpawnCapturesStdoutAndExitsSuccessfully(t *testing.T) {
	h, err := Spawn(context.Background(), Options{
		Path:   "/bin/sh",
		Args:   []string{"-c", "echo hello; echo world"},
		Stdout: OutputCapture,
		Stderr: OutputNull,
	})
	assert.NoError(t, err)

	var lines []string
	for line := range h.Stdout() {
		lines = append(lines, line)
	}
	status, err := h.Wait()
	assert.NoError(t, err)
	assert.True(t, status.Successful)
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestSpawnMapsNonZeroExit(t *testing.T) {
	h, err := Spawn(context.Background(), Options{Path: "/bin/sh", Args: []string{"-c", "exit 3"}})
	assert.NoError(t, err)
	status, err := h.Wait()
	assert.NoError(t, err)
	assert.False(t, status.Successful)
	assert.Equal(t, 3, status.Code)
}

func TestSpawnFallsBackOnPrimarySpawnFailure(t *testing.T) {
	h, err := Spawn(context.Background(), Options{
		Path:         "/no/such/binary-at-all",
		FallbackPath: "/bin/sh",
		Args:         []string{"-c", "exit 0"},
	})
	assert.NoError(t, err)
	status, err := h.Wait()
	assert.NoError(t, err)
	assert.True(t, status.Successful)
}

func TestTerminateKillsWithinGrace(t *testing.T) {
	h, err := Spawn(context.Background(), Options{Path: "/bin/sh", Args: []string{"-c", "trap '' TERM; sleep 30"}})
	assert.NoError(t, err)

	start := time.Now()
	status, err := h.Terminate(200 * time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, status.Successful)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("terminate took too long: %v", elapsed)
	}
}

func TestVersionStringErrorsWithoutVersionOutput(t *testing.T) {
	v, err := VersionString(context.Background(), "/bin/sh")
	_ = v
	assert.Error(t, err) // /bin/sh has no "version" subcommand producing text; exercises the spawn+read path
}
