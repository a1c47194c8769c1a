package launch

import (
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories of the
// search path. If file contains a slash, it is tried directly and the path
// is not consulted.
func LookPath(fsys afero.Fs, searchPath, file string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(fsys, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(fsys, path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Executables lists the names of every executable on the search path,
// sorted and without duplicates.
func Executables(fsys afero.Fs, searchPath string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			dir = "."
		}
		entries, err := afero.ReadDir(fsys, dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if seen[e.Name()] || e.IsDir() {
				continue
			}
			if findExecutable(fsys, filepath.Join(dir, e.Name())) != nil {
				continue
			}
			seen[e.Name()] = true
			out = append(out, e.Name())
		}
	}

	sort.Strings(out)
	return out
}
