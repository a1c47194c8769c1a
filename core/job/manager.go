package job

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrUnattributed is logged when a status change matches no known job.
var ErrUnattributed = errors.New("status change for unknown process")

// JobControlError is returned by fg and bg for a job that can't be used.
type JobControlError struct {
	Op   string
	Spec string
	Msg  string
}

func (e *JobControlError) Error() string {
	if e.Spec == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Spec, e.Msg)
}

// Manager owns the job table and is only used from the control loop.
type Manager struct {
	Table *Table

	Waiter   Waiter
	Signaler Signaler
	// Terminal is nil when the shell has no job control.
	Terminal Terminal
	Notifier *Notifier
	// ShellPgid is the group the terminal returns to.
	ShellPgid int

	Log *log.Logger

	shellModes *term.State
}

// NewManager creates a manager that uses the real OS. term may be nil.
func NewManager(terminal Terminal, logger *log.Logger) *Manager {
	m := &Manager{
		Table:     NewTable(),
		Waiter:    OSWaiter{},
		Signaler:  OSSignaler{},
		Terminal:  terminal,
		ShellPgid: unix.Getpgrp(),
		Log:       logger,
	}
	if terminal != nil {
		m.shellModes, _ = terminal.GetState()
	}
	return m
}

// JobControl is true if jobs can be moved between foreground and background.
func (m *Manager) JobControl() bool {
	return m.Terminal != nil
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Log != nil {
		m.Log.Printf(format, args...)
	}
}

// Foreground registers a freshly launched job and waits for it to stop or
// finish. It returns the job's exit status.
func (m *Manager) Foreground(j *Job) int {
	m.Table.Add(j)
	return m.foreground(j, false)
}

// Background registers a freshly launched job without waiting.
func (m *Manager) Background(j *Job) int {
	return m.Table.Add(j)
}

func (m *Manager) foreground(j *Job, cont bool) int {
	m.Table.SetForeground(j.ID)
	handoff := m.Terminal != nil && j.Pgid > 0 && j.Live()

	if handoff {
		if j.modes != nil {
			_ = m.Terminal.Restore(j.modes)
		}
		if err := m.Terminal.SetForeground(j.Pgid); err != nil {
			m.logf("giving terminal to %d: %v", j.Pgid, err)
		}
	}

	if cont {
		m.resume(j)
	}

	m.wait(j)

	if handoff {
		if j.State == Stopped {
			j.modes, _ = m.Terminal.GetState()
		}
		if err := m.Terminal.SetForeground(m.ShellPgid); err != nil {
			m.logf("reclaiming terminal: %v", err)
		}
		if m.shellModes != nil {
			_ = m.Terminal.Restore(m.shellModes)
		}
	}

	m.Table.ClearForeground()

	status := j.ExitStatus()
	if j.State == Done {
		j.reported = true
		m.Table.Remove(j.ID)
	}
	return status
}

// wait blocks until the job is no longer running.
func (m *Manager) wait(j *Job) {
	for j.State == Running {
		var next *Process
		for _, p := range j.Procs {
			if p.Pid > 0 && p.State == Running {
				next = p
				break
			}
		}
		if next == nil {
			j.refresh()
			return
		}

		wpid, ws, ru, err := m.Waiter.Wait(next.Pid, unix.WUNTRACED)
		if err != nil {
			// Someone else reaped it, nothing more will be learned.
			m.logf("waiting for %d: %v", next.Pid, err)
			next.State = Done
			j.refresh()
			continue
		}
		m.record(wpid, ws, ru)
	}
}

// record applies a wait status to whichever job owns pid.
func (m *Manager) record(pid int, ws unix.WaitStatus, ru *unix.Rusage) {
	j, p := m.Table.FindPid(pid)
	if j == nil {
		m.logf("%v: pid %d", ErrUnattributed, pid)
		return
	}
	j.apply(p, ws, ru)
}

// Reconcile collects every pending status change without blocking. It's
// called at safe points: after a foreground wait and before a prompt.
func (m *Manager) Reconcile() {
	if !m.Notifier.Pending() {
		return
	}

	for {
		pid, ws, ru, err := m.Waiter.Wait(-1, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED)
		if err != nil || pid <= 0 {
			return
		}
		m.record(pid, ws, ru)
	}
}

// Report writes a line for every background job that stopped or finished
// since the last report. Finished jobs are removed.
func (m *Manager) Report(w io.Writer) {
	for _, j := range m.Table.List() {
		if j.Foreground {
			continue
		}
		switch {
		case j.State == Done:
			if !j.reported {
				fmt.Fprintln(w, m.format(j, false))
			}
			m.Table.Remove(j.ID)
		case j.State != j.notified:
			if j.State == Stopped {
				fmt.Fprintln(w, m.format(j, false))
			}
			j.notified = j.State
		}
	}
}

// List writes every job, like the jobs builtin. Finished jobs are removed
// once listed.
func (m *Manager) List(w io.Writer, pids bool) {
	for _, j := range m.Table.List() {
		fmt.Fprintln(w, m.format(j, pids))
		j.notified = j.State
		if j.State == Done {
			m.Table.Remove(j.ID)
		}
	}
}

// ListGroups writes the process group id of every job.
func (m *Manager) ListGroups(w io.Writer) {
	for _, j := range m.Table.List() {
		fmt.Fprintln(w, j.Pgid)
	}
}

func (m *Manager) format(j *Job, pids bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d]%s  ", j.ID, m.Table.Marker(j))
	if pids {
		var ps []string
		for _, p := range j.Procs {
			ps = append(ps, strconv.Itoa(p.Pid))
		}
		fmt.Fprintf(&sb, "%s ", strings.Join(ps, " "))
	}
	fmt.Fprintf(&sb, "%-22s  %s", j.Describe(), j.Text)
	return sb.String()
}

// lookup resolves a job spec: empty for the current job, or an id with an
// optional % prefix.
func (m *Manager) lookup(op, spec string) (*Job, error) {
	if !m.JobControl() {
		return nil, &JobControlError{Op: op, Msg: "no job control"}
	}

	if spec == "" {
		j := m.Table.Current()
		if j == nil {
			return nil, &JobControlError{Op: op, Spec: "current", Msg: "no such job"}
		}
		return j, nil
	}

	id, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
	if err != nil {
		return nil, &JobControlError{Op: op, Spec: spec, Msg: "no such job"}
	}
	j, ok := m.Table.Get(id)
	if !ok {
		return nil, &JobControlError{Op: op, Spec: spec, Msg: "no such job"}
	}
	if j.State == Done {
		return nil, &JobControlError{Op: op, Spec: spec, Msg: "job has terminated"}
	}
	return j, nil
}

// Fg continues a job and gives it the terminal, then waits for it like a
// fresh foreground job.
func (m *Manager) Fg(w io.Writer, spec string) (int, error) {
	m.Reconcile()
	j, err := m.lookup("fg", spec)
	if err != nil {
		return 1, err
	}

	fmt.Fprintln(w, j.Text)
	return m.foreground(j, true), nil
}

// Bg continues a stopped job without giving it the terminal.
func (m *Manager) Bg(w io.Writer, spec string) (int, error) {
	m.Reconcile()
	j, err := m.lookup("bg", spec)
	if err != nil {
		return 1, err
	}

	if j.State == Running {
		fmt.Fprintf(w, "bg: job %d already in background\n", j.ID)
		return 0, nil
	}

	m.resume(j)
	fmt.Fprintf(w, "[%d]%s %s &\n", j.ID, m.Table.Marker(j), j.Text)
	return 0, nil
}

// resume sends SIGCONT to the job's group and marks it Running.
func (m *Manager) resume(j *Job) {
	if err := m.Signaler.Kill(-j.Pgid, syscall.SIGCONT); err != nil {
		m.logf("continuing job %d: %v", j.ID, err)
	}
	for _, p := range j.Procs {
		if p.State == Stopped {
			p.State = Running
		}
	}
	j.refresh()
	j.notified = Running
}

// Hangup sends SIGHUP to every live job, and SIGCONT to stopped ones so
// they can act on it. It's used when the shell exits.
func (m *Manager) Hangup() {
	for _, j := range m.Table.List() {
		if !j.Live() {
			continue
		}
		for _, sig := range []syscall.Signal{syscall.SIGHUP, syscall.SIGCONT} {
			if sig == syscall.SIGCONT && j.State != Stopped {
				continue
			}
			if j.Pgid > 0 {
				_ = m.Signaler.Kill(-j.Pgid, sig)
				continue
			}
			for _, p := range j.Procs {
				if p.Pid > 0 && p.State != Done {
					_ = m.Signaler.Kill(p.Pid, sig)
				}
			}
		}
	}
}
