package shell

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pborman/getopt/v2"
	"github.com/squish-sh/squish/core/config"
	"github.com/squish-sh/squish/core/env"
)

// Stdio is where a builtin writes.
type Stdio struct {
	Out io.Writer
	Err io.Writer
}

func (s *Shell) stdio() Stdio {
	return Stdio{Out: s.Stdout, Err: s.Stderr}
}

// Kind identifies a builtin.
type Kind int

const (
	KindCd Kind = iota
	KindLl
	KindFreqs
	KindAlias
	KindUnalias
	KindJobs
	KindFg
	KindBg
	KindExport
	KindUnset
	KindTime
	KindHelp
	KindExit

	numKinds
)

// HandlerFunc runs a builtin. args[0] is the builtin's name.
type HandlerFunc func(s *Shell, stdio Stdio, args []string) int

// Builtin is an entry in the builtin table.
type Builtin struct {
	Kind  Kind
	Name  string
	Usage string
	Short string
	// Long is shown by help NAME.
	Long string
	Run  HandlerFunc
}

// builtins is indexed by Kind, byName by name. Both are filled in init to
// break the cycle through help.
var (
	builtins [numKinds]*Builtin
	byName   = make(map[string]*Builtin)
)

func register(b *Builtin) {
	builtins[b.Kind] = b
	byName[b.Name] = b
}

// LookupBuiltin finds a builtin by name.
func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := byName[name]
	return b, ok
}

// IsBuiltin reports whether name is a builtin.
func IsBuiltin(name string) bool {
	_, ok := byName[name]
	return ok
}

// BuiltinNames lists every builtin, sorted.
func BuiltinNames() []string {
	out := make([]string, 0, len(byName))
	for name := range byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs a builtin with the shell's own streams. Unknown names
// report an error with status 127.
func (s *Shell) Dispatch(name string, args []string) int {
	return s.dispatch(s.stdio(), name, args)
}

func (s *Shell) dispatch(stdio Stdio, name string, args []string) int {
	b, ok := byName[name]
	if !ok {
		fmt.Fprintf(stdio.Err, "squish: %s: not a builtin\n", name)
		return 127
	}
	return b.Run(s, stdio, append([]string{name}, args...))
}

func usageError(stdio Stdio, b *Builtin, err error) int {
	if err != nil {
		fmt.Fprintf(stdio.Err, "%s: %v\n", b.Name, err)
	}
	fmt.Fprintf(stdio.Err, "%s: usage: %s\n", b.Name, b.Usage)
	return StatusUsage
}

// Cd is the cd shell builtin.
func Cd(s *Shell, stdio Stdio, args []string) int {
	var dir string
	printDir := false

	switch len(args) {
	case 1:
		home, ok := s.Env.Lookup(EnvHome)
		if !ok || home == "" {
			fmt.Fprintf(stdio.Err, "%s: HOME not set\n", args[0])
			return StatusBuiltin
		}
		dir = home
	case 2:
		dir = args[1]
		if dir == "-" {
			old, ok := s.Env.Lookup(EnvOldPWD)
			if !ok || old == "" {
				fmt.Fprintf(stdio.Err, "%s: OLDPWD not set\n", args[0])
				return StatusBuiltin
			}
			dir, printDir = old, true
		}
	default:
		fmt.Fprintf(stdio.Err, "%s: too many arguments\n", args[0])
		return StatusBuiltin
	}

	prev := s.Dir()
	if err := s.setDir(s.resolve(dir)); err != nil {
		fmt.Fprintf(stdio.Err, "%s: %v\n", args[0], err)
		return StatusBuiltin
	}

	wd := s.Dir()
	s.Env.Set(EnvOldPWD, prev)
	s.Env.Set(EnvPWD, wd)
	if printDir {
		fmt.Fprintln(stdio.Out, wd)
	}
	if s.DirFreq != nil {
		if err := s.DirFreq.Visit(wd); err != nil {
			s.Log.Printf("saving %s: %v", config.DirFreqName, err)
		}
	}
	return 0
}

// Freqs lists the most visited directories.
func Freqs(s *Shell, stdio Stdio, args []string) int {
	if len(args) > 1 {
		return usageError(stdio, builtins[KindFreqs], nil)
	}
	if s.DirFreq == nil {
		return 0
	}

	home := s.Env.Get(EnvHome)
	for _, e := range s.DirFreq.Entries() {
		fmt.Fprintf(stdio.Out, "%6d  %s\n", e.Count, collapseHome(e.Path, home))
	}
	return 0
}

// collapseHome shows paths under home with a leading ~.
func collapseHome(path, home string) string {
	switch {
	case home == "" || home == "/":
		return path
	case path == home:
		return "~"
	case strings.HasPrefix(path, home+"/"):
		return "~" + strings.TrimPrefix(path, home)
	default:
		return path
	}
}

// Alias defines or prints aliases.
func Alias(s *Shell, stdio Stdio, args []string) int {
	if len(args) == 1 {
		for _, name := range s.Aliases.Names() {
			value, _ := s.Aliases.Get(name)
			fmt.Fprintln(stdio.Out, config.FormatAlias(name, value))
		}
		return 0
	}

	status, changed := 0, false
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			if value, found := s.Aliases.Get(name); found {
				fmt.Fprintln(stdio.Out, config.FormatAlias(name, value))
			} else {
				fmt.Fprintf(stdio.Err, "%s: %s: not found\n", args[0], name)
				status = StatusBuiltin
			}
			continue
		}
		if name == "" || strings.ContainsAny(name, " \t/$'\"") {
			fmt.Fprintf(stdio.Err, "%s: `%s': invalid alias name\n", args[0], name)
			status = StatusBuiltin
			continue
		}
		s.Aliases.Set(name, value)
		changed = true
	}

	if changed {
		s.saveAliases()
	}
	return status
}

// Unalias removes aliases.
func Unalias(s *Shell, stdio Stdio, args []string) int {
	b := builtins[KindUnalias]
	opts := getopt.New()
	all := opts.Bool('a', "remove all aliases")
	if err := opts.Getopt(args, nil); err != nil {
		return usageError(stdio, b, err)
	}

	if *all {
		s.Aliases.Clear()
		s.saveAliases()
		return 0
	}
	if opts.NArgs() == 0 {
		return usageError(stdio, b, nil)
	}

	status, changed := 0, false
	for _, name := range opts.Args() {
		if !s.Aliases.Remove(name) {
			fmt.Fprintf(stdio.Err, "%s: %s: not found\n", args[0], name)
			status = StatusBuiltin
			continue
		}
		changed = true
	}
	if changed {
		s.saveAliases()
	}
	return status
}

func (s *Shell) saveAliases() {
	if s.Config == nil || s.forked {
		return
	}
	// Defaults from config.yaml are reapplied at startup; only user changes
	// belong in the aliases file.
	own := env.NewAliases()
	for _, name := range s.Aliases.Names() {
		value, _ := s.Aliases.Get(name)
		if def, ok := s.Config.Aliases[name]; ok && def == value {
			continue
		}
		own.Set(name, value)
	}
	if err := s.Config.SaveAliases(own); err != nil {
		s.errorf("saving aliases: %v", err)
	}
}

// Jobs lists the job table.
func Jobs(s *Shell, stdio Stdio, args []string) int {
	opts := getopt.New()
	long := opts.Bool('l', "show process ids")
	groups := opts.Bool('p', "show only process group ids")
	if err := opts.Getopt(args, nil); err != nil || opts.NArgs() > 0 {
		return usageError(stdio, builtins[KindJobs], err)
	}

	s.Jobs.Reconcile()
	if *groups {
		s.Jobs.ListGroups(stdio.Out)
	} else {
		s.Jobs.List(stdio.Out, *long)
	}
	return 0
}

// Fg moves a job to the foreground.
func Fg(s *Shell, stdio Stdio, args []string) int {
	if len(args) > 2 {
		return usageError(stdio, builtins[KindFg], nil)
	}

	status, err := s.Jobs.Fg(stdio.Out, jobSpec(args))
	if err != nil {
		fmt.Fprintln(stdio.Err, err)
	}
	return status
}

// Bg resumes a stopped job in the background.
func Bg(s *Shell, stdio Stdio, args []string) int {
	if len(args) > 2 {
		return usageError(stdio, builtins[KindBg], nil)
	}

	status, err := s.Jobs.Bg(stdio.Out, jobSpec(args))
	if err != nil {
		fmt.Fprintln(stdio.Err, err)
	}
	return status
}

func jobSpec(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return args[1]
}

// Export sets environment variables, or lists them.
func Export(s *Shell, stdio Stdio, args []string) int {
	opts := getopt.New()
	list := opts.Bool('p', "list exported variables")
	if err := opts.Getopt(args, nil); err != nil {
		return usageError(stdio, builtins[KindExport], err)
	}

	if *list || opts.NArgs() == 0 {
		for _, kv := range s.Env.Environ() {
			name, value, _ := strings.Cut(kv, "=")
			fmt.Fprintf(stdio.Out, "export %s=%s\n", name, config.Quote(value))
		}
		return 0
	}

	status := 0
	for _, arg := range opts.Args() {
		name, value, hasValue := strings.Cut(arg, "=")
		if !env.ValidName(name) {
			fmt.Fprintf(stdio.Err, "%s: `%s': not a valid identifier\n", args[0], arg)
			status = StatusBuiltin
			continue
		}
		if hasValue {
			s.Env.Set(name, value)
		}
	}
	return status
}

// Unset removes environment variables.
func Unset(s *Shell, stdio Stdio, args []string) int {
	opts := getopt.New()
	opts.Bool('v', "treat NAME as a variable")
	if err := opts.Getopt(args, nil); err != nil {
		return usageError(stdio, builtins[KindUnset], err)
	}

	status := 0
	for _, name := range opts.Args() {
		if !env.ValidName(name) {
			fmt.Fprintf(stdio.Err, "%s: `%s': not a valid identifier\n", args[0], name)
			status = StatusBuiltin
			continue
		}
		s.Env.Unset(name)
	}
	return status
}

// Exit quits the shell. Stopped jobs get one warning first.
func Exit(s *Shell, stdio Stdio, args []string) int {
	code := s.LastStatus
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(stdio.Err, "%s: %s: numeric argument required\n", args[0], args[1])
			return StatusUsage
		}
		code = n & 0xff
	default:
		fmt.Fprintf(stdio.Err, "%s: too many arguments\n", args[0])
		return StatusBuiltin
	}

	s.Jobs.Reconcile()
	if s.Jobs.Table.HasStopped() && !s.prevWarned {
		fmt.Fprintln(stdio.Err, "There are stopped jobs.")
		s.exitWarned = true
		return StatusBuiltin
	}

	if s.Interactive {
		fmt.Fprintln(stdio.Err, "exit")
	}
	s.exiting = true
	s.exitCode = code
	return code
}

func init() {
	register(&Builtin{
		Kind: KindCd, Name: "cd", Usage: "cd [dir | -]",
		Short: "Change the shell working directory.",
		Long: "With no DIR, change to $HOME. A DIR of - changes to $OLDPWD and prints it.\n" +
			"Every change is counted for freqs.",
		Run: Cd,
	})
	register(&Builtin{
		Kind: KindLl, Name: "ll", Usage: "ll [-a] [path]",
		Short: "List a directory in long format.",
		Long: "Directories come first, then files by name. Hidden entries are shown\n" +
			"with -a.",
		Run: Ll,
	})
	register(&Builtin{
		Kind: KindFreqs, Name: "freqs", Usage: "freqs",
		Short: "Show the most visited directories.",
		Run:   Freqs,
	})
	register(&Builtin{
		Kind: KindAlias, Name: "alias", Usage: "alias [name[=value] ...]",
		Short: "Define or display aliases.",
		Long: "Without arguments, print every alias. Aliases replace the first word of\n" +
			"a command and are saved to the aliases file.",
		Run: Alias,
	})
	register(&Builtin{
		Kind: KindUnalias, Name: "unalias", Usage: "unalias [-a] name [name ...]",
		Short: "Remove aliases.",
		Long:  "With -a, remove every alias.",
		Run:   Unalias,
	})
	register(&Builtin{
		Kind: KindJobs, Name: "jobs", Usage: "jobs [-lp]",
		Short: "Display the status of jobs.",
		Long:  "-l adds process ids, -p prints only process group ids.",
		Run:   Jobs,
	})
	register(&Builtin{
		Kind: KindFg, Name: "fg", Usage: "fg [%job]",
		Short: "Move a job to the foreground.",
		Long:  "Without a job, the most recent one is used.",
		Run:   Fg,
	})
	register(&Builtin{
		Kind: KindBg, Name: "bg", Usage: "bg [%job]",
		Short: "Resume a stopped job in the background.",
		Long:  "Without a job, the most recent one is used.",
		Run:   Bg,
	})
	register(&Builtin{
		Kind: KindExport, Name: "export", Usage: "export [-p] [name[=value] ...]",
		Short: "Set environment variables.",
		Long:  "Without arguments or with -p, print every variable.",
		Run:   Export,
	})
	register(&Builtin{
		Kind: KindUnset, Name: "unset", Usage: "unset [name ...]",
		Short: "Remove environment variables.",
		Run:   Unset,
	})
	register(&Builtin{
		Kind: KindTime, Name: "time", Usage: "time [pipeline]",
		Short: "Report the time a pipeline takes.",
		Long:  "Prints the real, user and system time and the CPU usage to stderr.",
		Run:   Time,
	})
	register(&Builtin{
		Kind: KindHelp, Name: "help", Usage: "help [name]",
		Short: "Display information about builtin commands.",
		Long:  "For a command that isn't a builtin, run it with --help.",
		Run:   Help,
	})
	register(&Builtin{
		Kind: KindExit, Name: "exit", Usage: "exit [n]",
		Short: "Exit the shell.",
		Long: "Exits with status N, or the status of the last command. With stopped\n" +
			"jobs, the first exit only warns.",
		Run: Exit,
	})
}
