//go:build !windows

package shutdown

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"eegstream/core"
)

func TestManager_SignalHandling(t *testing.T) {
	var forcedCode atomic.Int32
	forcedCode.Store(-1)
	m := NewManager(zaptest.NewLogger(t),
		WithSignals(syscall.SIGUSR1),
		WithForceExit(func(code int) { forcedCode.Store(int32(code)) }))
	m.Start()
	m.Start()
	defer m.Shutdown()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-m.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first signal did not cancel the context")
	}

	syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	deadline := time.Now().Add(2 * time.Second)
	for forcedCode.Load() == -1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if forcedCode.Load() != int32(core.ExitCodeError) {
		t.Errorf("forced exit code = %d, want %d", forcedCode.Load(), core.ExitCodeError)
	}
}
