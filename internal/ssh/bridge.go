package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muesli/cancelreader"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// DefaultTerm is the TERM requested for remote shells.
const DefaultTerm = "xterm-256color"

// ShellBridge relays a local terminal to an interactive remote shell. It
// also satisfies Bubble Tea's ExecCommand so the TUI can hand the terminal
// over for the lifetime of the shell.
type ShellBridge struct {
	session *Session
	channel *ssh.Session
	term    string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// OpenShell opens a session channel for an interactive shell. The shell
// starts on Run.
func (s *Session) OpenShell(termName string) (*ShellBridge, error) {
	channel, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	s.MarkInUse()
	if termName == "" {
		termName = DefaultTerm
	}
	return &ShellBridge{
		session: s,
		channel: channel,
		term:    termName,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}, nil
}

func (b *ShellBridge) SetStdin(r io.Reader)  { b.stdin = r }
func (b *ShellBridge) SetStdout(w io.Writer) { b.stdout = w }
func (b *ShellBridge) SetStderr(w io.Writer) { b.stderr = w }

// Run runs the shell until the remote side exits.
func (b *ShellBridge) Run() error {
	return b.RunContext(context.Background())
}

// RunContext runs the shell until the remote side exits, the transport drops
// or ctx is cancelled. A terminal on stdin is put in raw mode for the
// duration and follows local window resizes.
func (b *ShellBridge) RunContext(ctx context.Context) error {
	defer b.channel.Close()

	fd := -1
	if f, ok := b.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}

	width, height := 80, 24
	if fd >= 0 {
		if w, h, err := term.GetSize(fd); err == nil && w > 0 && h > 0 {
			width, height = w, h
		}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.ICANON:        1,
		ssh.ISIG:          1,
	}
	if err := b.channel.RequestPty(b.term, height, width, modes); err != nil {
		return fmt.Errorf("failed to request PTY: %w", err)
	}

	remoteIn, err := b.channel.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to set up stdin pipe: %w", err)
	}
	remoteOut, err := b.channel.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to set up stdout pipe: %w", err)
	}
	remoteErr, err := b.channel.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to set up stderr pipe: %w", err)
	}

	if fd >= 0 {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set terminal to raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	if err := b.channel.Shell(); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	logging.Infof("[ShellBridge] Shell started on %s (%dx%d)", b.session.profile.ID, width, height)

	input, err := cancelreader.NewReader(b.stdin)
	if err != nil {
		return fmt.Errorf("failed to wrap stdin: %w", err)
	}
	defer input.Close()

	// Not part of the group: a blocked read only ends through Cancel.
	go func() {
		if _, err := io.Copy(remoteIn, input); err == nil {
			remoteIn.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return b.channel.Wait()
	})
	g.Go(func() error {
		_, err := io.Copy(b.stdout, remoteOut)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(b.stderr, remoteErr)
		return err
	})
	if fd >= 0 {
		g.Go(func() error {
			watchResize(runCtx, fd, func(w, h int) {
				b.channel.WindowChange(h, w)
			})
			return nil
		})
	}
	g.Go(func() error {
		<-runCtx.Done()
		input.Cancel()
		if ctx.Err() != nil {
			b.channel.Close()
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitMissing *ssh.ExitMissingError
	if errors.As(err, &exitMissing) || errors.Is(err, io.EOF) {
		err = nil
	}
	if dropped := b.session.Err(); dropped != nil {
		return dropped
	}
	logging.Infof("[ShellBridge] Shell on %s ended: %v", b.session.profile.ID, err)
	return err
}
