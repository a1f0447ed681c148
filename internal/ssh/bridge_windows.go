//go:build windows

package ssh

import (
	"context"
	"time"

	"golang.org/x/term"
)

// watchResize polls the console size since Windows has no SIGWINCH.
func watchResize(ctx context.Context, fd int, resize func(width, height int)) {
	lastW, lastH, _ := term.GetSize(fd)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w, h, err := term.GetSize(fd)
			if err != nil || (w == lastW && h == lastH) {
				continue
			}
			lastW, lastH = w, h
			resize(w, h)
		}
	}
}
