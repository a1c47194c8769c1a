// Package shell ties the parser, expander, launcher and job manager together
// into the interactive control loop and owns all of the shell's state.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/config"
	"github.com/squish-sh/squish/core/env"
	"github.com/squish-sh/squish/core/expand"
	"github.com/squish-sh/squish/core/history"
	"github.com/squish-sh/squish/core/job"
	"github.com/squish-sh/squish/core/launch"
	"github.com/squish-sh/squish/core/syntax"
	"golang.org/x/term"
)

const (
	EnvHome   = "HOME"
	EnvPWD    = "PWD"
	EnvOldPWD = "OLDPWD"
	EnvPath   = "PATH"
	EnvUser   = "USER"

	// EnvConfig passes the configuration directory to child shells.
	EnvConfig = "SQUISH_CONFIG"
)

// Exit statuses decided by the shell rather than a child.
const (
	StatusSyntax    = 2
	StatusExpansion = 1
	StatusBuiltin   = 1
	StatusUsage     = 2
)

// Observer is told about every command line that parsed.
type Observer interface {
	Observe(line, dir string) error
}

// Shell is the state owned by the control loop. Nothing else mutates it.
type Shell struct {
	Env      *env.Environment
	Aliases  *env.Aliases
	Jobs     *job.Manager
	Launcher *launch.Launcher

	// Fs backs ll and glob expansion.
	Fs afero.Fs
	// Config may be nil, in which case nothing is persisted.
	Config    *config.Configuration
	DirFreq   *history.DirFreq
	Observers []Observer

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	Log    *log.Logger

	LastStatus  int
	Interactive bool
	Pid         int

	forked     bool
	exiting    bool
	exitCode   int
	exitWarned bool
	prevWarned bool

	chdir    func(dir string) error
	getwd    func() (string, error)
	hostname func() (string, error)
	now      func() time.Time
}

// Options configure New.
type Options struct {
	Config *config.Configuration
	// Self is the shell binary, re-run for forked builtins.
	Self string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	Log    *log.Logger

	// Interactive shells take the terminal, keep history and record events.
	Interactive bool
	// Forked shells run one builtin stage of a pipeline and never persist
	// anything to the config directory.
	Forked bool
}

// New creates a shell from the process environment and the configuration.
func New(opts Options) (*Shell, error) {
	if opts.Log == nil {
		opts.Log = log.New(io.Discard, "", 0)
	}
	if opts.Stdin == nil {
		opts.Stdin, opts.Stdout, opts.Stderr = os.Stdin, os.Stdout, os.Stderr
	}

	s := &Shell{
		Env:         env.NewFromList(os.Environ()),
		Aliases:     env.NewAliases(),
		Fs:          afero.NewOsFs(),
		Config:      opts.Config,
		Stdin:       opts.Stdin,
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
		Log:         opts.Log,
		Interactive: opts.Interactive,
		Pid:         os.Getpid(),
		forked:      opts.Forked,
	}

	if cfg := opts.Config; cfg != nil {
		if err := cfg.ApplyEnv(s.Env); err != nil {
			s.errorf("%s: %v", cfg.EnvFile, err)
		}
		for name, value := range cfg.Aliases {
			s.Aliases.Set(name, value)
		}
		if err := cfg.LoadAliases(s.Aliases); err != nil {
			s.errorf("%v", err)
		}
		s.Env.Set(EnvConfig, cfg.Dir())
	}
	if wd, err := os.Getwd(); err == nil {
		s.Env.Set(EnvPWD, wd)
	}

	var terminal job.Terminal
	ttyFd := -1
	if opts.Interactive && term.IsTerminal(int(opts.Stdin.Fd())) {
		tty, err := job.OpenTTY(int(opts.Stdin.Fd()))
		if err != nil {
			s.Log.Printf("no job control: %v", err)
		} else {
			terminal = tty
			ttyFd = tty.Fd
		}
	}

	s.Jobs = job.NewManager(terminal, opts.Log)
	s.Jobs.Notifier = job.NewNotifier()

	s.Launcher = launch.NewLauncher(opts.Self)
	s.Launcher.Stdin, s.Launcher.Stdout, s.Launcher.Stderr = opts.Stdin, opts.Stdout, opts.Stderr
	s.Launcher.JobControl = terminal != nil
	s.Launcher.Tty = ttyFd
	s.Launcher.OnFailure = s.launchFailed
	s.Launcher.Log = opts.Log

	if opts.Interactive && opts.Config != nil {
		s.openHistory(opts.Config)
	}

	return s, nil
}

func (s *Shell) openHistory(cfg *config.Configuration) {
	freq, err := history.LoadDirFreq(cfg.Fs(), config.DirFreqName)
	if err != nil {
		s.Log.Printf("loading %s: %v", config.DirFreqName, err)
	}
	s.DirFreq = freq

	events, err := cfg.OpenEvents()
	if err != nil {
		s.Log.Printf("opening %s: %v", config.EventsName, err)
		return
	}
	s.Observers = append(s.Observers, history.NewJsonLinesRecorder(events))
}

// Dir is the working directory.
func (s *Shell) Dir() string {
	getwd := os.Getwd
	if s.getwd != nil {
		getwd = s.getwd
	}
	wd, err := getwd()
	if err != nil {
		return s.Env.Get(EnvPWD)
	}
	return wd
}

func (s *Shell) setDir(dir string) error {
	chdir := os.Chdir
	if s.chdir != nil {
		chdir = s.chdir
	}
	return chdir(dir)
}

func (s *Shell) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Exiting is true once exit has been accepted.
func (s *Shell) Exiting() bool {
	return s.exiting
}

// ExitCode is the status the shell process should exit with.
func (s *Shell) ExitCode() int {
	if s.exiting {
		return s.exitCode
	}
	return s.LastStatus
}

var colorError = color.New(color.FgRed, color.Bold)

func (s *Shell) errorf(format string, args ...interface{}) {
	fmt.Fprintf(s.Stderr, "%s %s\n", colorError.Sprint("squish:"), fmt.Sprintf(format, args...))
}

func (s *Shell) expander() *expand.Expander {
	return &expand.Expander{
		Env:        s.Env,
		Aliases:    s.Aliases,
		Fs:         s.Fs,
		Dir:        s.Dir(),
		LastStatus: s.LastStatus,
		Pid:        s.Pid,
	}
}

// RunLine parses and runs one line of input and returns the status of the
// last pipeline that ran.
func (s *Shell) RunLine(line string) int {
	s.prevWarned, s.exitWarned = s.exitWarned, false

	list, err := syntax.Parse(line)
	if err != nil {
		s.errorf("%v", err)
		s.LastStatus = StatusSyntax
		return s.LastStatus
	}
	if list.Empty() {
		return s.LastStatus
	}

	for _, o := range s.Observers {
		if err := o.Observe(line, s.Dir()); err != nil {
			s.Log.Printf("recording command: %v", err)
		}
	}

	for _, chain := range list.Chains() {
		if chain.Background {
			s.runBackgroundChain(chain)
		} else {
			s.runChain(chain)
		}
		if s.exiting {
			break
		}
	}
	return s.LastStatus
}

// runChain runs pipelines joined by && and ||. A skipped pipeline leaves the
// status of the last one that ran in place.
func (s *Shell) runChain(chain syntax.Chain) {
	run := true
	for _, item := range chain.Items {
		if run {
			s.LastStatus, _ = s.runPipeline(item.Pipeline, false)
		}
		if s.exiting {
			return
		}

		switch item.Op {
		case syntax.OpAnd:
			run = s.LastStatus == 0
		case syntax.OpOr:
			run = s.LastStatus != 0
		default:
			run = true
		}
	}
}

// runBackgroundChain starts a chain as one background job. A chain of more
// than one pipeline runs in a child shell.
func (s *Shell) runBackgroundChain(chain syntax.Chain) {
	if len(chain.Items) == 1 {
		s.LastStatus, _ = s.runPipeline(chain.Items[0].Pipeline, true)
		return
	}

	if s.Launcher.Self == "" {
		s.errorf("%s: can't start a child shell", chain.Text)
		s.LastStatus = StatusBuiltin
		return
	}
	s.LastStatus = s.launch(launch.Subshell(s.Launcher.Self, chain.Text), nil)
}

// runPipeline expands and runs one pipeline. The job is nil when nothing was
// launched.
func (s *Shell) runPipeline(p *syntax.Pipeline, background bool) (int, *job.Job) {
	if rest, ok := timePrefix(p); ok {
		return s.timePipeline(rest, background)
	}

	expanded, err := s.expander().Pipeline(p)
	if err != nil {
		s.errorf("%v", err)
		return StatusExpansion, nil
	}
	if c := expanded.Commands[0]; len(expanded.Commands) == 1 && len(c.Args) == 0 {
		return s.redirectOnly(c.Redirections), nil
	}

	plan := launch.Plan(expanded, IsBuiltin, background)
	if plan.InProcess {
		return s.runInProcess(expanded.Commands[0]), nil
	}

	var j *job.Job
	status := s.launch(plan, &j)
	return status, j
}

// launch executes a plan and either waits for it or registers it in the
// background.
func (s *Shell) launch(plan *launch.LaunchPlan, out **job.Job) int {
	j, err := s.Launcher.Execute(plan, s.Env.Environ())
	if err != nil {
		s.errorf("%v", err)
		return StatusBuiltin
	}
	if out != nil {
		*out = j
	}

	if plan.Background {
		id := s.Jobs.Background(j)
		if s.Interactive {
			fmt.Fprintf(s.Stderr, "[%d] %d\n", id, lastPid(j))
		}
		return 0
	}

	start := s.clock()
	status := s.Jobs.Foreground(j)
	s.reportTiming(s.clock().Sub(start))
	return status
}

func lastPid(j *job.Job) int {
	for i := len(j.Procs) - 1; i >= 0; i-- {
		if j.Procs[i].Pid > 0 {
			return j.Procs[i].Pid
		}
	}
	return 0
}

// runInProcess runs a lone builtin, honoring its output redirections.
func (s *Shell) runInProcess(c *syntax.Command) int {
	stdio, closer, err := s.redirectBuiltin(c.Redirections)
	if err != nil {
		s.errorf("%v", err)
		return launch.StatusRedirect
	}
	defer closer.Close()

	argv := c.Argv()
	return s.dispatch(stdio, argv[0], argv[1:])
}

// redirectOnly opens and closes the targets of a command whose words all
// expanded to nothing, so output files are still created and truncated.
func (s *Shell) redirectOnly(redirs []syntax.Redirection) int {
	if len(redirs) == 0 {
		return 0
	}
	_, closer, err := s.redirectBuiltin(redirs)
	if err != nil {
		s.errorf("%v", err)
		return launch.StatusRedirect
	}
	closer.Close()
	return 0
}

// redirectBuiltin opens the files a builtin's redirections name. Only the
// standard output and error streams are rebound.
func (s *Shell) redirectBuiltin(redirs []syntax.Redirection) (Stdio, io.Closer, error) {
	var opened launch.Closers
	streams := map[int]io.Writer{1: s.Stdout, 2: s.Stderr}

	for _, r := range redirs {
		var w io.Writer
		switch r.Kind {
		case syntax.RedirDup:
			target, ok := streams[r.TargetFd]
			if !ok {
				opened.Close()
				return Stdio{}, nil, fmt.Errorf("%d: bad file descriptor", r.TargetFd)
			}
			w = target
		default:
			flag := os.O_RDONLY
			switch r.Kind {
			case syntax.RedirOut:
				flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			case syntax.RedirAppend:
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}
			f, err := os.OpenFile(s.resolve(r.Target.Literal()), flag, 0666)
			if err != nil {
				opened.Close()
				return Stdio{}, nil, err
			}
			opened = append(opened, f)
			w = f
		}
		streams[r.Fd] = w
	}

	return Stdio{Out: streams[1], Err: streams[2]}, opened, nil
}

func (s *Shell) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir(), path)
}

// Autostart runs the configured startup lines in order.
func (s *Shell) Autostart() {
	if s.Config == nil {
		return
	}
	for _, line := range s.Config.Autostart {
		s.RunLine(line)
		if s.exiting {
			return
		}
	}
}

// LineReader supplies lines to the interactive loop.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Run is the interactive control loop. It returns once the user exits.
func (s *Shell) Run(rl LineReader) int {
	for !s.exiting {
		s.Jobs.Reconcile()
		s.Jobs.Report(s.Stderr)

		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			// Input closed, quit unless stopped jobs need a warning first.
			s.prevWarned, s.exitWarned = s.exitWarned, false
			s.dispatch(s.stdio(), "exit", nil)

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			s.Log.Printf("reading input: %v", err)
			s.exiting, s.exitCode = true, 1

		case strings.TrimSpace(line) == "":
			continue // empty line

		default:
			s.RunLine(line)
		}
	}

	s.Close()
	return s.exitCode
}

// RunScript runs every line of r, stopping early on exit.
func (s *Shell) RunScript(r io.Reader) int {
	lines := bufio.NewScanner(r)
	for !s.exiting && lines.Scan() {
		s.RunLine(lines.Text())
		s.Jobs.Reconcile()
	}
	if err := lines.Err(); err != nil {
		s.errorf("%v", err)
		return 1
	}
	return s.ExitCode()
}

// Close hangs up on remaining jobs.
func (s *Shell) Close() {
	if s.Interactive {
		s.Jobs.Hangup()
	}
	s.Jobs.Notifier.Stop()
}
