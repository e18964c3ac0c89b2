package reloader

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnSignal(t *testing.T) {
	got := make(chan struct{}, 4)
	stop := OnSignal(func() { got <- struct{}{} }, syscall.SIGUSR2)
	defer stop()

	for i := 0; i < 2; i++ {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("signal %d not delivered", i)
		}
	}

	stop()
	// calling stop twice is fine
	stop()
}
