package job

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Waiter collects child status changes.
type Waiter interface {
	Wait(pid int, options int) (int, unix.WaitStatus, *unix.Rusage, error)
}

// Signaler sends signals to processes and groups.
type Signaler interface {
	Kill(pid int, sig syscall.Signal) error
}

// OSWaiter waits with wait4(2).
type OSWaiter struct{}

// Wait implements Waiter.Wait, retrying when interrupted.
func (OSWaiter) Wait(pid int, options int) (int, unix.WaitStatus, *unix.Rusage, error) {
	var ws unix.WaitStatus
	var ru unix.Rusage
	for {
		wpid, err := unix.Wait4(pid, &ws, options, &ru)
		if err == unix.EINTR {
			continue
		}
		return wpid, ws, &ru, err
	}
}

// OSSignaler signals with kill(2).
type OSSignaler struct{}

// Kill implements Signaler.Kill.
func (OSSignaler) Kill(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// Notifier records that some child changed state. The channel holds at most
// one pending notification.
type Notifier struct {
	C chan os.Signal
}

// NewNotifier starts recording SIGCHLD.
func NewNotifier() *Notifier {
	n := &Notifier{C: make(chan os.Signal, 1)}
	signal.Notify(n.C, syscall.SIGCHLD)
	return n
}

// Pending consumes the notification, if any.
func (n *Notifier) Pending() bool {
	if n == nil {
		return true
	}
	select {
	case <-n.C:
		return true
	default:
		return false
	}
}

// Stop stops recording SIGCHLD.
func (n *Notifier) Stop() {
	if n != nil {
		signal.Stop(n.C)
	}
}
