package job

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is the controlling terminal the shell hands between jobs.
type Terminal interface {
	// SetForeground gives the terminal to a process group.
	SetForeground(pgid int) error
	// GetState and Restore save and apply terminal modes.
	GetState() (*term.State, error)
	Restore(*term.State) error
}

// jobSignals are caught, never ignored, while the shell waits for input so
// children start with the default handlers.
var jobSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTSTP,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
}

// TTY is a Terminal backed by a file descriptor.
type TTY struct {
	Fd int

	caught chan os.Signal
}

var _ Terminal = (*TTY)(nil)

// OpenTTY prepares fd for job control: it waits until the shell is in the
// foreground, puts the shell in its own process group and takes the
// terminal.
func OpenTTY(fd int) (*TTY, error) {
	if !term.IsTerminal(fd) {
		return nil, errors.New("not a terminal")
	}

	t := &TTY{Fd: fd, caught: make(chan os.Signal, 8)}
	go func() {
		// The handlers only need to exist; keyboard signals are ignored by
		// the shell itself.
		for range t.caught {
		}
	}()

	for {
		fg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
		if err != nil {
			return nil, err
		}
		if fg == unix.Getpgrp() {
			break
		}
		_ = unix.Kill(-unix.Getpgrp(), unix.SIGTTIN)
	}

	signal.Notify(t.caught, jobSignals...)

	pid := os.Getpid()
	if unix.Getpgrp() != pid {
		if err := unix.Setpgid(pid, pid); err != nil {
			return nil, err
		}
	}
	if err := t.SetForeground(pid); err != nil {
		return nil, err
	}

	return t, nil
}

// SetForeground implements Terminal.SetForeground. SIGTTOU is ignored while
// the shell is still in the background so the call doesn't stop it.
func (t *TTY) SetForeground(pgid int) error {
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Notify(t.caught, syscall.SIGTTOU)

	for {
		err := unix.IoctlSetPointerInt(t.Fd, unix.TIOCSPGRP, pgid)
		if err != unix.EINTR {
			return err
		}
	}
}

// GetState implements Terminal.GetState.
func (t *TTY) GetState() (*term.State, error) {
	return term.GetState(t.Fd)
}

// Restore implements Terminal.Restore.
func (t *TTY) Restore(s *term.State) error {
	return term.Restore(t.Fd, s)
}

// Close stops catching job control signals.
func (t *TTY) Close() error {
	signal.Reset(jobSignals...)
	return nil
}
