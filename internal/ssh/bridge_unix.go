//go:build !windows

package ssh

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// watchResize forwards SIGWINCH-driven size changes of fd until ctx ends.
func watchResize(ctx context.Context, fd int, resize func(width, height int)) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-winch:
			if w, h, err := term.GetSize(fd); err == nil {
				resize(w, h)
			}
		}
	}
}
