// Package job tracks launched pipelines and moves them between the
// foreground, the background and the stopped state.
package job

import (
	"errors"
	"fmt"
	"syscall"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// State is where a Job is in its lifecycle.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a state change isn't allowed.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Process is a member of a Job. A process with a zero Pid never ran, its
// status was decided by the launcher.
type Process struct {
	Pid   int
	Name  string
	State State

	// Status is the exit code once Done, Signal is set if it was killed.
	Status int
	Signal syscall.Signal
}

// ExitStatus is the exit code, or 128 plus the signal number.
func (p *Process) ExitStatus() int {
	if p.Signal != 0 {
		return 128 + int(p.Signal)
	}
	return p.Status
}

// Job is a launched pipeline and its process group.
type Job struct {
	ID   int
	Pgid int
	// Procs are in pipeline order, the last one decides the status.
	Procs      []*Process
	State      State
	Foreground bool
	Text       string

	Started  time.Time
	Finished time.Time
	// User and Sys are the CPU time of every reaped member.
	User time.Duration
	Sys  time.Duration

	// modes holds the terminal settings the job had when it stopped.
	modes    *term.State
	notified State
	reported bool
}

// NewJob creates a Running job from its processes.
func NewJob(pgid int, text string, procs []*Process) *Job {
	j := &Job{
		Pgid:     pgid,
		Procs:    procs,
		State:    Running,
		Text:     text,
		Started:  time.Now(),
		notified: Running,
	}
	j.refresh()
	return j
}

// Transition moves the job to a new state.
func (j *Job) Transition(to State) error {
	if j.State == to {
		return nil
	}

	switch {
	case j.State == Running && (to == Stopped || to == Done):
	case j.State == Stopped && to == Running:
	default:
		return fmt.Errorf("%w: %v to %v", ErrInvalidTransition, j.State, to)
	}

	j.State = to
	if to == Done {
		j.Finished = time.Now()
	}
	return nil
}

// refresh recomputes the job state from its members. A stopped job whose
// members were killed is resumed before it finishes.
func (j *Job) refresh() {
	running, stopped := 0, 0
	for _, p := range j.Procs {
		switch p.State {
		case Running:
			running++
		case Stopped:
			stopped++
		}
	}

	var next State
	switch {
	case running > 0:
		next = Running
	case stopped > 0:
		next = Stopped
	default:
		next = Done
	}

	if j.State == Stopped && next == Done {
		_ = j.Transition(Running)
	}
	_ = j.Transition(next)
}

// ExitStatus is the status of the last stage.
func (j *Job) ExitStatus() int {
	if len(j.Procs) == 0 {
		return 0
	}
	last := j.Procs[len(j.Procs)-1]
	if j.State == Stopped && last.State == Stopped {
		return 128 + int(syscall.SIGTSTP)
	}
	return last.ExitStatus()
}

// Live is true if any member still has to be reaped.
func (j *Job) Live() bool {
	for _, p := range j.Procs {
		if p.Pid > 0 && p.State != Done {
			return true
		}
	}
	return false
}

func (j *Job) find(pid int) *Process {
	for _, p := range j.Procs {
		if p.Pid == pid {
			return p
		}
	}
	return nil
}

// apply records a wait status for one member.
func (j *Job) apply(p *Process, ws unix.WaitStatus, ru *unix.Rusage) {
	switch {
	case ws.Exited():
		p.State = Done
		p.Status = ws.ExitStatus()
	case ws.Signaled():
		p.State = Done
		p.Signal = ws.Signal()
	case ws.Stopped():
		p.State = Stopped
	case ws.Continued():
		p.State = Running
	}

	if p.State == Done && ru != nil {
		j.User += time.Duration(ru.Utime.Nano())
		j.Sys += time.Duration(ru.Stime.Nano())
	}

	j.refresh()
}

// Describe is the status column shown by jobs and notifications.
func (j *Job) Describe() string {
	switch j.State {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	}

	last := j.Procs[len(j.Procs)-1]
	switch {
	case last.Signal != 0:
		return signalText(last.Signal)
	case last.Status != 0:
		return fmt.Sprintf("Exit %d", last.Status)
	default:
		return "Done"
	}
}

func signalText(sig syscall.Signal) string {
	text := sig.String()
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}
