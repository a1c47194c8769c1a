package shell

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/env"
	"github.com/squish-sh/squish/core/history"
	"github.com/squish-sh/squish/core/job"
	"github.com/squish-sh/squish/core/launch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ExampleBytesToHuman() {

	// < 1k is presented directly
	fmt.Println(BytesToHuman(512))

	// Multiples > 10 are shown without decimal.
	fmt.Println(BytesToHuman(23 * 10e8))

	// Multiples < 10 are shown with decimal.
	fmt.Println(BytesToHuman(5 * 1024))

	// Output: 512
	// 23G
	// 5.1K
}

type goldenTestSuite map[string]goldenTest

type goldenTest struct {
	Args []string
}

// Run runs a builtin against a listing fixture and compares its combined
// output with testdata/golden/<TestName>/<case>.golden.
func (gts goldenTestSuite) Run(t *testing.T, s *Shell, cmd HandlerFunc) {
	t.Helper()

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	for tn, tc := range gts {
		t.Run(tn, func(t *testing.T) {
			var out bytes.Buffer
			cmd(s, Stdio{Out: &out, Err: &out}, tc.Args)
			g.Assert(t, tn, out.Bytes())
		})
	}
}

// fixtureShell has a fixed working directory of /work on an in-memory
// filesystem.
func fixtureShell(t *testing.T) *Shell {
	t.Helper()
	color.NoColor = true

	fs := afero.NewMemMapFs()
	stamp := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	for _, dir := range []string{"/work", "/work/src", "/work/Docs"} {
		require.NoError(t, fs.MkdirAll(dir, 0755))
	}
	files := []struct {
		name string
		size int
		perm os.FileMode
	}{
		{"/work/b.txt", 1500, 0644},
		{"/work/A.sh", 10, 0755},
		{"/work/archive.tar.gz", 2000000, 0644},
		{"/work/.hidden", 0, 0600},
		{"/work/src/main.go", 120, 0644},
	}
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f.name, bytes.Repeat([]byte("x"), f.size), f.perm))
	}
	for _, name := range []string{"/work", "/work/src", "/work/Docs", "/work/b.txt", "/work/A.sh", "/work/archive.tar.gz", "/work/.hidden", "/work/src/main.go"} {
		require.NoError(t, fs.Chtimes(name, stamp, stamp))
	}

	return &Shell{
		Env:     env.NewFromList([]string{"HOME=/home/me", "USER=me"}),
		Aliases: env.NewAliases(),
		Jobs:    job.NewManager(nil, nil),
		Fs:      fs,
		getwd:   func() (string, error) { return "/work", nil },
	}
}

func newFsLauncher(fsys afero.Fs) *launch.Launcher {
	l := launch.NewLauncher("")
	l.Fs = fsys
	return l
}

func TestLl(t *testing.T) {
	s := fixtureShell(t)

	goldenTestSuite{
		"default":  {Args: []string{"ll"}},
		"all":      {Args: []string{"ll", "-a"}},
		"subdir":   {Args: []string{"ll", "src"}},
		"file":     {Args: []string{"ll", "/work/A.sh"}},
		"missing":  {Args: []string{"ll", "nope"}},
		"too-many": {Args: []string{"ll", "a", "b"}},
	}.Run(t, s, Ll)
}

func TestHelp(t *testing.T) {
	s := fixtureShell(t)

	goldenTestSuite{
		"builtins": {Args: []string{"help"}},
		"cd":       {Args: []string{"help", "cd"}},
		"freqs":    {Args: []string{"help", "freqs"}},
		"several":  {Args: []string{"help", "fg", "exit"}},
	}.Run(t, s, Help)
}

func TestFreqs(t *testing.T) {
	s := fixtureShell(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dirfreq", []byte("/tmp\t1\n/home/me/src\t3\n/home/me\t2\n"), 0600))
	freq, err := history.LoadDirFreq(fs, "dirfreq")
	require.NoError(t, err)
	s.DirFreq = freq

	var out bytes.Buffer
	assert.Equal(t, 0, Freqs(s, Stdio{Out: &out, Err: &out}, []string{"freqs"}))
	assert.Equal(t, "     3  ~/src\n     2  ~\n     1  /tmp\n", out.String())

	out.Reset()
	assert.Equal(t, StatusUsage, Freqs(s, Stdio{Out: &out, Err: &out}, []string{"freqs", "x"}))
	assert.Equal(t, "freqs: usage: freqs\n", out.String())
}

func TestCollapseHome(t *testing.T) {
	cases := map[string]struct {
		path, home, want string
	}{
		"home":       {"/home/me", "/home/me", "~"},
		"under home": {"/home/me/src", "/home/me", "~/src"},
		"prefix":     {"/home/meadow", "/home/me", "/home/meadow"},
		"no home":    {"/tmp", "", "/tmp"},
		"root home":  {"/etc", "/", "/etc"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.want, collapseHome(tc.path, tc.home))
		})
	}
}

func TestPrompt(t *testing.T) {
	s := fixtureShell(t)
	s.hostname = func() (string, error) { return "box.example.com", nil }
	s.getwd = func() (string, error) { return "/home/me/src", nil }
	s.Jobs.Table.Add(job.NewJob(10, "sleep 10", []*job.Process{{Pid: 10, Name: "sleep"}}))

	s.Config = nil
	assert.Equal(t, "me@box ~/src [1]$ ", s.Prompt())

	s.LastStatus = 3
	assert.Equal(t, "me@box ~/src [1]3$ ", s.Prompt())

	s.Jobs.Table.Remove(1)
	s.hostname = func() (string, error) { return "", fmt.Errorf("no hostname") }
	s.LastStatus = 0
	assert.Equal(t, "me@localhost ~/src $ ", s.Prompt())
}

func TestSuggest(t *testing.T) {
	s := fixtureShell(t)
	bin := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(bin, "/bin/grep", nil, 0755))
	require.NoError(t, afero.WriteFile(bin, "/bin/git", nil, 0755))
	s.Launcher = newFsLauncher(bin)
	s.Env.Set(EnvPath, "/bin")
	s.Aliases.Set("gst", "git status")

	assert.Equal(t, []string{"git", "gst"}, s.Suggest("gti"))
	assert.Equal(t, []string{"git", "gst", "bg"}, s.Suggest("gt"))
	assert.Empty(t, s.Suggest("kubectl"))
}

func TestCompleter(t *testing.T) {
	s := fixtureShell(t)
	bin := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(bin, "/bin/grep", nil, 0755))
	require.NoError(t, afero.WriteFile(bin, "/bin/git", nil, 0755))
	s.Launcher = newFsLauncher(bin)
	s.Env.Set(EnvPath, "/bin")
	c := &Completer{Shell: s}

	cases := map[string]struct {
		line   string
		want   []string
		length int
	}{
		"command":          {line: "gi", want: []string{"t"}, length: 2},
		"builtin":          {line: "ex", want: []string{"port", "it"}, length: 2},
		"after pipe":       {line: "ls | g", want: []string{"it", "rep"}, length: 1},
		"argument":         {line: "ls s", want: []string{"rc/"}, length: 1},
		"hidden":           {line: "ls .h", want: []string{"idden"}, length: 2},
		"nested":           {line: "cat src/m", want: []string{"ain.go"}, length: 5},
		"relative command": {line: "./A", want: []string{".sh"}, length: 3},
		"nothing":          {line: "ls zz", want: []string{}, length: 2},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			line := []rune(tc.line)
			got, length := c.Do(line, len(line))

			var strs []string
			for _, r := range got {
				strs = append(strs, string(r))
			}
			if len(tc.want) == 0 {
				assert.Empty(t, strs)
			} else {
				assert.ElementsMatch(t, tc.want, strs)
			}
			assert.Equal(t, tc.length, length)
		})
	}
}

func jobsFixture(t *testing.T) *Shell {
	t.Helper()
	s := fixtureShell(t)
	s.Jobs.Waiter = stubWaiter{}

	for _, j := range []*job.Job{
		job.NewJob(10, "sleep 10 | cat", []*job.Process{
			{Pid: 10, Name: "sleep"},
			{Pid: 11, Name: "cat"},
		}),
		job.NewJob(20, "vi notes", []*job.Process{{Pid: 20, Name: "vi", State: job.Stopped}}),
		job.NewJob(30, "make", []*job.Process{{Pid: 30, Name: "make", State: job.Done, Status: 2}}),
		job.NewJob(40, "yes", []*job.Process{{Pid: 40, Name: "yes", State: job.Done, Signal: syscall.SIGKILL}}),
	} {
		s.Jobs.Background(j)
	}
	return s
}

func TestJobs(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	cases := map[string][]string{
		"default": {"jobs"},
		"long":    {"jobs", "-l"},
		"groups":  {"jobs", "-p"},
		"usage":   {"jobs", "-x"},
	}

	for tn, args := range cases {
		t.Run(tn, func(t *testing.T) {
			s := jobsFixture(t)
			var out bytes.Buffer
			Jobs(s, Stdio{Out: &out, Err: &out}, args)
			g.Assert(t, tn, out.Bytes())
		})
	}

	t.Run("finished jobs are dropped", func(t *testing.T) {
		s := jobsFixture(t)
		Jobs(s, Stdio{Out: io.Discard, Err: io.Discard}, []string{"jobs"})
		assert.Len(t, s.Jobs.Table.List(), 2)
	})
}
