package launch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/job"
	"github.com/squish-sh/squish/core/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type spawnCall struct {
	path string
	argv []string
	attr *syscall.ProcAttr
}

// recordingSpawner hands out fake pids and never starts anything.
type recordingSpawner struct {
	calls  []spawnCall
	nextID int
	errs   map[int]error
}

func (r *recordingSpawner) Spawn(path string, argv []string, attr *syscall.ProcAttr) (int, error) {
	idx := len(r.calls)
	files := append([]uintptr(nil), attr.Files...)
	r.calls = append(r.calls, spawnCall{path: path, argv: argv, attr: &syscall.ProcAttr{Env: attr.Env, Files: files, Sys: attr.Sys}})
	if err := r.errs[idx]; err != nil {
		return 0, err
	}
	r.nextID++
	return 1000 + r.nextID, nil
}

type testLauncher struct {
	*Launcher
	spawner  *recordingSpawner
	pipes    [][2]int
	killed   []string
	reaped   []int
	failures []*LaunchError
}

func newTestLauncher(t *testing.T) *testLauncher {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bin/ls", nil, 0755))
	require.NoError(t, afero.WriteFile(fs, "/bin/wc", nil, 0755))
	require.NoError(t, afero.WriteFile(fs, "/bin/data", nil, 0644))

	tl := &testLauncher{spawner: &recordingSpawner{errs: make(map[int]error)}}
	tl.Launcher = &Launcher{
		Spawner:    tl.spawner,
		Fs:         fs,
		Self:       "/opt/squish",
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		JobControl: true,
		Tty:        -1,
		OnFailure:  func(e *LaunchError) { tl.failures = append(tl.failures, e) },
	}
	tl.pipe = func() (int, int, error) {
		var p [2]int
		if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
			return 0, 0, err
		}
		tl.pipes = append(tl.pipes, p)
		return p[0], p[1], nil
	}
	tl.kill = func(pid int, sig syscall.Signal) error {
		tl.killed = append(tl.killed, fmt.Sprintf("%d:%v", pid, sig))
		return nil
	}
	tl.reap = func(pid int) { tl.reaped = append(tl.reaped, pid) }
	return tl
}

func isClosed(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return errors.Is(err, unix.EBADF)
}

var testEnv = []string{"PATH=/usr/bin:/bin", "HOME=/root"}

func TestLauncher_pipes(t *testing.T) {
	tl := newTestLauncher(t)

	plan := Plan(parsePipeline(t, "ls | wc | wc -l"), isTestBuiltin, false)
	j, err := tl.Execute(plan, testEnv)
	require.NoError(t, err)

	require.Len(t, tl.pipes, 2, "n stages use n-1 pipes")
	for _, p := range tl.pipes {
		assert.True(t, isClosed(p[0]), "read end %d left open", p[0])
		assert.True(t, isClosed(p[1]), "write end %d left open", p[1])
	}

	calls := tl.spawner.calls
	require.Len(t, calls, 3)
	assert.Equal(t, "/bin/ls", calls[0].path)
	assert.Equal(t, []string{"wc", "-l"}, calls[2].argv)
	assert.Equal(t, testEnv, calls[0].attr.Env)

	assert.Equal(t, uintptr(tl.pipes[0][1]), calls[0].attr.Files[1])
	assert.Equal(t, uintptr(tl.pipes[0][0]), calls[1].attr.Files[0])
	assert.Equal(t, uintptr(tl.pipes[1][1]), calls[1].attr.Files[1])
	assert.Equal(t, uintptr(tl.pipes[1][0]), calls[2].attr.Files[0])
	assert.Equal(t, os.Stdin.Fd(), calls[0].attr.Files[0])
	assert.Equal(t, os.Stdout.Fd(), calls[2].attr.Files[1])

	// The first process leads the group, the rest join it.
	assert.Equal(t, 0, calls[0].attr.Sys.Pgid)
	assert.Equal(t, 1001, calls[1].attr.Sys.Pgid)
	assert.Equal(t, 1001, calls[2].attr.Sys.Pgid)
	assert.Equal(t, 1001, j.Pgid)
	assert.Equal(t, "ls | wc | wc -l", j.Text)
	assert.Equal(t, job.Running, j.State)
	assert.Len(t, j.Procs, 3)
}

func TestLauncher_foregroundTerminal(t *testing.T) {
	tl := newTestLauncher(t)
	tl.Tty = 0

	_, err := tl.Execute(Plan(parsePipeline(t, "ls | wc"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.True(t, tl.spawner.calls[0].attr.Sys.Foreground)
	assert.False(t, tl.spawner.calls[1].attr.Sys.Foreground)

	tl.spawner.calls = nil
	_, err = tl.Execute(Plan(parsePipeline(t, "ls"), isTestBuiltin, true), testEnv)
	require.NoError(t, err)
	assert.False(t, tl.spawner.calls[0].attr.Sys.Foreground, "background jobs don't get the terminal")
}

func TestLauncher_noJobControl(t *testing.T) {
	tl := newTestLauncher(t)
	tl.JobControl = false

	j, err := tl.Execute(Plan(parsePipeline(t, "ls | wc"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.Nil(t, tl.spawner.calls[0].attr.Sys)
	assert.Equal(t, 0, j.Pgid)
}

func TestLauncher_notFound(t *testing.T) {
	tl := newTestLauncher(t)

	j, err := tl.Execute(Plan(parsePipeline(t, "ls | nope | wc"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)

	require.Len(t, tl.spawner.calls, 2)
	require.Len(t, tl.failures, 1)
	assert.Equal(t, "nope: command not found", tl.failures[0].Error())
	assert.True(t, errors.Is(tl.failures[0], ErrNotFound))

	assert.Equal(t, 0, j.Procs[1].Pid)
	assert.Equal(t, job.Done, j.Procs[1].State)
	assert.Equal(t, StatusNotFound, j.Procs[1].Status)
	assert.Equal(t, job.Running, j.State)

	for _, p := range tl.pipes {
		assert.True(t, isClosed(p[0]))
		assert.True(t, isClosed(p[1]))
	}
}

func TestLauncher_notExecutable(t *testing.T) {
	tl := newTestLauncher(t)

	j, err := tl.Execute(Plan(parsePipeline(t, "/bin/data"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.Empty(t, tl.spawner.calls)
	assert.Equal(t, job.Done, j.State)
	assert.Equal(t, StatusNotFound, j.ExitStatus())
}

func TestLauncher_execFailure(t *testing.T) {
	tl := newTestLauncher(t)
	tl.spawner.errs[0] = syscall.ENOEXEC

	j, err := tl.Execute(Plan(parsePipeline(t, "ls"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, j.ExitStatus())
	require.Len(t, tl.failures, 1)
	assert.False(t, tl.failures[0].Hard)
}

func TestLauncher_hardFailure(t *testing.T) {
	tl := newTestLauncher(t)
	tl.spawner.errs[1] = syscall.EAGAIN

	j, err := tl.Execute(Plan(parsePipeline(t, "ls | wc | wc"), isTestBuiltin, false), testEnv)
	assert.Nil(t, j)

	var lerr *LaunchError
	require.True(t, errors.As(err, &lerr))
	assert.True(t, lerr.Hard)
	assert.Equal(t, []string{"-1001:killed"}, tl.killed)
	assert.Equal(t, []int{1001}, tl.reaped)

	for _, p := range tl.pipes {
		assert.True(t, isClosed(p[0]))
		assert.True(t, isClosed(p[1]))
	}
}

func TestLauncher_builtinStage(t *testing.T) {
	tl := newTestLauncher(t)

	_, err := tl.Execute(Plan(parsePipeline(t, "jobs -l | wc"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.Equal(t, "/opt/squish", tl.spawner.calls[0].path)
	assert.Equal(t, []string{"/opt/squish", BuiltinCommand, "jobs", "-l"}, tl.spawner.calls[0].argv)
}

func TestLauncher_subshell(t *testing.T) {
	tl := newTestLauncher(t)

	j, err := tl.Execute(Subshell("/opt/squish", "ls && wc"), testEnv)
	require.NoError(t, err)
	assert.Equal(t, "/opt/squish", tl.spawner.calls[0].path)
	assert.Equal(t, "ls && wc", j.Text)
}

func TestLauncher_redirections(t *testing.T) {
	tl := newTestLauncher(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	_, err := tl.Execute(Plan(parsePipeline(t, fmt.Sprintf("ls > %s 2>&1 3< %s", out, out)), isTestBuiltin, false), testEnv)
	require.NoError(t, err)

	files := tl.spawner.calls[0].attr.Files
	require.Len(t, files, 4)
	assert.NotEqual(t, os.Stdout.Fd(), files[1])
	assert.Equal(t, files[1], files[2], "2>&1 copies the redirected stdout")
	assert.True(t, isClosed(int(files[1])), "shell closes redirect targets after spawning")
	assert.True(t, isClosed(int(files[3])))

	_, statErr := os.Stat(out)
	assert.NoError(t, statErr)
}

func TestLauncher_redirectOverridesPipe(t *testing.T) {
	tl := newTestLauncher(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	_, err := tl.Execute(Plan(parsePipeline(t, "ls > "+out+" | wc"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.NotEqual(t, uintptr(tl.pipes[0][1]), tl.spawner.calls[0].attr.Files[1])
}

func TestLauncher_redirectFailure(t *testing.T) {
	for _, line := range []string{"ls < /definitely/missing", "ls 2>&7"} {
		t.Run(line, func(t *testing.T) {
			tl := newTestLauncher(t)

			j, err := tl.Execute(Plan(parsePipeline(t, line), isTestBuiltin, false), testEnv)
			require.NoError(t, err)
			assert.Empty(t, tl.spawner.calls)
			assert.Equal(t, StatusRedirect, j.ExitStatus())
			assert.Len(t, tl.failures, 1)
		})
	}
}

func TestLauncher_redirectFdOutOfRange(t *testing.T) {
	tl := newTestLauncher(t)
	p := parsePipeline(t, "ls")
	p.Commands[0].Redirections = []syntax.Redirection{{
		Kind:   syntax.RedirOut,
		Fd:     1 << 40,
		Target: syntax.LiteralWord("/dev/null"),
	}}

	j, err := tl.Execute(Plan(p, isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	assert.Empty(t, tl.spawner.calls)
	assert.Equal(t, StatusRedirect, j.ExitStatus())
	require.Len(t, tl.failures, 1)
	assert.ErrorIs(t, tl.failures[0], syscall.EBADF)
}

func TestLauncher_inProcessRejected(t *testing.T) {
	tl := newTestLauncher(t)
	_, err := tl.Execute(Plan(parsePipeline(t, "cd /"), isTestBuiltin, false), testEnv)
	assert.Error(t, err)
}

func TestLauncher_defaultFailureOutput(t *testing.T) {
	tl := newTestLauncher(t)
	tl.OnFailure = nil
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	tl.Stderr = w

	_, err = tl.Execute(Plan(parsePipeline(t, "nope"), isTestBuiltin, false), testEnv)
	require.NoError(t, err)
	w.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	assert.Equal(t, "squish: nope: command not found\n", buf.String())
}

func TestLookPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/usr/bin/git", nil, 0755))
	require.NoError(t, afero.WriteFile(fs, "/bin/git", nil, 0755))
	require.NoError(t, afero.WriteFile(fs, "/bin/readme", nil, 0644))
	require.NoError(t, fs.MkdirAll("/bin/dir", 0755))

	path, err := LookPath(fs, "/usr/bin:/bin", "git")
	assert.NoError(t, err)
	assert.Equal(t, "/usr/bin/git", path)

	_, err = LookPath(fs, "/usr/bin:/bin", "readme")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = LookPath(fs, "/usr/bin:/bin", "dir")
	assert.True(t, errors.Is(err, ErrNotFound))

	path, err = LookPath(fs, "", "/bin/git")
	assert.NoError(t, err)
	assert.Equal(t, "/bin/git", path)

	assert.Equal(t, []string{"git"}, Executables(fs, "/usr/bin:/bin:/missing"))
}
