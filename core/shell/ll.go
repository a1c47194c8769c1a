package shell

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pborman/getopt/v2"
	"github.com/spf13/afero"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

var archiveExts = map[string]bool{
	".tar": true, ".gz": true, ".tgz": true, ".zip": true,
	".xz": true, ".bz2": true, ".zst": true, ".7z": true,
}

// BytesToHuman formats a size with a decimal unit suffix.
func BytesToHuman(bytes int64) string {
	for _, e := range []struct {
		unit  string
		power int64
	}{
		{"P", 1e15},
		{"T", 1e12},
		{"G", 1e9},
		{"M", 1e6},
		{"K", 1e3},
	} {
		quotient := bytes / e.power
		switch {
		case quotient == 0:
			continue
		case quotient > 10:
			return fmt.Sprintf("%d%s", quotient, e.unit)
		default:
			return fmt.Sprintf("%0.1f%s", float64(bytes)/float64(e.power), e.unit)
		}
	}

	return fmt.Sprintf("%d", bytes)
}

// Ll lists a directory in long format.
func Ll(s *Shell, stdio Stdio, args []string) int {
	opts := getopt.New()
	all := opts.Bool('a', "show hidden entries")
	if err := opts.Getopt(args, nil); err != nil || opts.NArgs() > 1 {
		return usageError(stdio, builtins[KindLl], err)
	}

	target := s.Dir()
	if opts.NArgs() == 1 {
		target = s.resolve(opts.Arg(0))
	}

	info, err := lstat(s.Fs, target)
	if err != nil {
		fmt.Fprintf(stdio.Err, "%s: %v\n", args[0], err)
		return StatusBuiltin
	}

	entries := []fs.FileInfo{info}
	if info.IsDir() {
		entries, err = afero.ReadDir(s.Fs, target)
		if err != nil {
			fmt.Fprintf(stdio.Err, "%s: %v\n", args[0], err)
			return StatusBuiltin
		}
	}

	var shown []fs.FileInfo
	for _, e := range entries {
		if !*all && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		shown = append(shown, e)
	}
	sortListing(shown)

	for _, e := range shown {
		writeListing(stdio.Out, e)
	}
	return 0
}

func lstat(fsys afero.Fs, name string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return fsys.Stat(name)
}

// sortListing puts directories first, then sorts by name ignoring case.
func sortListing(entries []fs.FileInfo) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		la, lb := strings.ToLower(a.Name()), strings.ToLower(b.Name())
		if la != lb {
			return la < lb
		}
		return a.Name() < b.Name()
	})
}

func writeListing(w io.Writer, info fs.FileInfo) {
	size := BytesToHuman(info.Size())
	if info.IsDir() {
		size = "-"
	}

	fmt.Fprintf(w, "%s  %6s  %s  %s\n",
		info.Mode().String(),
		size,
		info.ModTime().Format("2006-01-02 15:04"),
		colorName(info))
}

func colorName(info fs.FileInfo) string {
	mode := info.Mode()
	name := info.Name()
	switch {
	case mode.IsDir():
		return ColorBoldBlue.Sprint(name)
	case mode&fs.ModeSymlink != 0:
		return ColorBoldCyan.Sprint(name)
	case mode&0111 != 0:
		return ColorBoldGreen.Sprint(name)
	case archiveExts[strings.ToLower(filepath.Ext(name))]:
		return ColorBoldRed.Sprint(name)
	default:
		return name
	}
}
