package launch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/job"
	"github.com/squish-sh/squish/core/syntax"
	"golang.org/x/sys/unix"
)

const (
	// StatusNotFound is the status of a stage that couldn't be executed.
	StatusNotFound = 127
	// StatusRedirect is the status of a stage whose redirections failed.
	StatusRedirect = 1
)

// closedFd leaves a descriptor closed in the child.
const closedFd = ^uintptr(0)

// LaunchError describes a stage that didn't start. Unless Hard is set the
// stage is recorded as a finished process with Status.
type LaunchError struct {
	Name   string
	Status int
	Err    error
	// Hard errors abort the whole launch.
	Hard bool
}

func (e *LaunchError) Error() string {
	if errors.Is(e.Err, ErrNotFound) {
		return fmt.Sprintf("%s: command not found", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Spawner starts a process.
type Spawner interface {
	Spawn(path string, argv []string, attr *syscall.ProcAttr) (int, error)
}

// ForkExec spawns processes with fork and exec. The runtime resets caught
// signals to their defaults in the child.
type ForkExec struct{}

// Spawn implements Spawner.Spawn.
func (ForkExec) Spawn(path string, argv []string, attr *syscall.ProcAttr) (int, error) {
	return syscall.ForkExec(path, argv, attr)
}

// Launcher executes launch plans.
type Launcher struct {
	Spawner Spawner
	// Fs is used to resolve executables.
	Fs afero.Fs
	// Self is the shell binary, used for builtin stages.
	Self string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// JobControl puts every job in its own process group. Tty is the
	// terminal handed to foreground jobs, or -1.
	JobControl bool
	Tty        int

	// OnFailure is told about every stage that didn't start.
	OnFailure func(*LaunchError)
	Log       *log.Logger

	pipe func() (int, int, error)
	kill func(pid int, sig syscall.Signal) error
	reap func(pid int)
}

// NewLauncher creates a launcher for the real OS using the shell's standard
// streams.
func NewLauncher(self string) *Launcher {
	return &Launcher{
		Spawner: ForkExec{},
		Fs:      afero.NewOsFs(),
		Self:    self,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Tty:     -1,
	}
}

func (l *Launcher) newPipe() (int, int, error) {
	if l.pipe != nil {
		return l.pipe()
	}
	var p [2]int
	err := unix.Pipe2(p[:], unix.O_CLOEXEC)
	return p[0], p[1], err
}

func (l *Launcher) reapPid(pid int) {
	if l.reap != nil {
		l.reap(pid)
		return
	}
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, 0, nil)
}

func (l *Launcher) signal(pid int, sig syscall.Signal) {
	if l.kill != nil {
		_ = l.kill(pid, sig)
		return
	}
	_ = unix.Kill(pid, sig)
}

func (l *Launcher) logf(format string, args ...interface{}) {
	if l.Log != nil {
		l.Log.Printf(format, args...)
	}
}

func (l *Launcher) fail(err *LaunchError) {
	if l.OnFailure != nil {
		l.OnFailure(err)
		return
	}
	fmt.Fprintf(l.Stderr, "squish: %v\n", err)
}

// Execute starts every stage of the plan, left to right. Each pipe end is
// closed in the shell as soon as the child using it has started, so once
// Execute returns the shell holds no pipe descriptors.
func (l *Launcher) Execute(plan *LaunchPlan, environ []string) (*job.Job, error) {
	if plan.InProcess {
		return nil, errors.New("launch: plan must run in-process")
	}

	searchPath := lookupEnv(environ, "PATH")

	var procs []*job.Process
	pgid := 0
	pending := -1

	abort := func(lerr *LaunchError) (*job.Job, error) {
		if pending >= 0 {
			unix.Close(pending)
		}
		l.killAll(pgid, procs)
		return nil, lerr
	}

	for _, st := range plan.Stages {
		proc := &job.Process{Name: st.Argv[0]}

		write, nextRead := -1, -1
		if st.StdoutPipe != NoPipe {
			r, w, err := l.newPipe()
			if err != nil {
				return abort(&LaunchError{Name: proc.Name, Err: err, Hard: true})
			}
			nextRead, write = r, w
		}

		files := []uintptr{l.Stdin.Fd(), l.Stdout.Fd(), l.Stderr.Fd()}
		if pending >= 0 {
			files[0] = uintptr(pending)
		}
		if write >= 0 {
			files[1] = uintptr(write)
		}

		opened, err := redirect(&files, st.Redirections)
		if err != nil {
			l.skip(proc, &LaunchError{Name: proc.Name, Status: StatusRedirect, Err: err})
		} else if pid, lerr := l.spawn(st, files, environ, searchPath, pgid, plan.Background); lerr != nil {
			if lerr.Hard {
				opened.Close()
				closeFd(write)
				closeFd(nextRead)
				return abort(lerr)
			}
			l.skip(proc, lerr)
		} else {
			proc.Pid = pid
			if l.JobControl {
				if pgid == 0 {
					pgid = pid
				}
				// The child may already have exec'd, which makes this fail.
				_ = unix.Setpgid(pid, pgid)
			}
		}

		opened.Close()
		closeFd(pending)
		closeFd(write)
		pending = nextRead
		procs = append(procs, proc)
	}

	return job.NewJob(pgid, plan.Text, procs), nil
}

func (l *Launcher) skip(proc *job.Process, lerr *LaunchError) {
	proc.State = job.Done
	proc.Status = lerr.Status
	l.fail(lerr)
}

func (l *Launcher) spawn(st Stage, files []uintptr, environ []string, searchPath string, pgid int, background bool) (int, *LaunchError) {
	name := st.Argv[0]
	path, argv := st.Path, st.Argv

	switch {
	case st.Builtin:
		path = l.Self
		argv = append([]string{l.Self, BuiltinCommand}, st.Argv...)
	case path == "":
		found, err := LookPath(l.Fs, searchPath, name)
		if err != nil {
			return 0, &LaunchError{Name: name, Status: StatusNotFound, Err: err}
		}
		path = found
	}

	attr := &syscall.ProcAttr{
		Env:   environ,
		Files: files,
		Sys:   l.sysProcAttr(pgid, background),
	}

	pid, err := l.Spawner.Spawn(path, argv, attr)
	switch {
	case err == nil:
		l.logf("started %d %q in group %d", pid, argv, pgid)
		return pid, nil
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.ENOMEM):
		return 0, &LaunchError{Name: name, Status: StatusNotFound, Err: err, Hard: true}
	default:
		return 0, &LaunchError{Name: name, Status: StatusNotFound, Err: err}
	}
}

// sysProcAttr puts the child in the job's process group. The first stage of
// a foreground job also takes the terminal before it execs.
func (l *Launcher) sysProcAttr(pgid int, background bool) *syscall.SysProcAttr {
	if !l.JobControl {
		return nil
	}

	sys := &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if pgid == 0 && !background && l.Tty >= 0 {
		sys.Foreground = true
		sys.Ctty = l.Tty
	}
	return sys
}

func (l *Launcher) killAll(pgid int, procs []*job.Process) {
	if pgid > 0 {
		l.signal(-pgid, unix.SIGKILL)
	}
	for _, p := range procs {
		if p.Pid <= 0 {
			continue
		}
		if pgid == 0 {
			l.signal(p.Pid, unix.SIGKILL)
		}
		l.reapPid(p.Pid)
	}
}

// redirect opens redirection targets and installs them in the child's
// descriptor table. Files are opened close-on-exec in the shell and must be
// closed once the child has started.
func redirect(files *[]uintptr, redirs []syntax.Redirection) (Closers, error) {
	var opened Closers

	for _, r := range redirs {
		var fd uintptr

		if r.Fd < 0 || r.Fd > syntax.MaxFd {
			opened.Close()
			return nil, fmt.Errorf("%d: %w", r.Fd, syscall.EBADF)
		}

		switch r.Kind {
		case syntax.RedirDup:
			if r.TargetFd >= len(*files) || (*files)[r.TargetFd] == closedFd {
				opened.Close()
				return nil, fmt.Errorf("%d: %w", r.TargetFd, syscall.EBADF)
			}
			fd = (*files)[r.TargetFd]

		default:
			flag := os.O_RDONLY
			switch r.Kind {
			case syntax.RedirOut:
				flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			case syntax.RedirAppend:
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}

			f, err := os.OpenFile(r.Target.Literal(), flag, 0666)
			if err != nil {
				opened.Close()
				return nil, err
			}
			opened = append(opened, f)
			fd = f.Fd()
		}

		for len(*files) <= r.Fd {
			*files = append(*files, closedFd)
		}
		(*files)[r.Fd] = fd
	}

	return opened, nil
}

func closeFd(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}

func lookupEnv(environ []string, key string) string {
	prefix := key + "="
	for i := len(environ) - 1; i >= 0; i-- {
		if strings.HasPrefix(environ[i], prefix) {
			return environ[i][len(prefix):]
		}
	}
	return ""
}

// Closers closes every member, returning the last error.
type Closers []io.Closer

func (lc Closers) Close() error {
	var lastErr error
	for _, v := range lc {
		if err := v.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
