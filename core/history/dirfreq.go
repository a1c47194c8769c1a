package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DirEntry is a directory and the number of times it was entered.
type DirEntry struct {
	Path  string
	Count int
}

// DirFreq counts directory visits. The file holds one path<TAB>count pair
// per line.
type DirFreq struct {
	fs     afero.Fs
	name   string
	counts map[string]int
}

// LoadDirFreq reads the store at name, which may not exist yet. Malformed
// lines are skipped.
func LoadDirFreq(fsys afero.Fs, name string) (*DirFreq, error) {
	d := &DirFreq{fs: fsys, name: name, counts: make(map[string]int)}

	data, err := afero.ReadFile(fsys, name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d, nil
	case err != nil:
		return d, err
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		path, count, ok := strings.Cut(scanner.Text(), "\t")
		if !ok || path == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n <= 0 {
			continue
		}
		d.counts[path] += n
	}
	return d, scanner.Err()
}

// Visit bumps the count for path and saves the store.
func (d *DirFreq) Visit(path string) error {
	d.counts[path]++
	return d.Save()
}

// Save writes the store back to its file.
func (d *DirFreq) Save() error {
	var buf bytes.Buffer
	for _, e := range d.Entries() {
		fmt.Fprintf(&buf, "%s\t%d\n", e.Path, e.Count)
	}
	return afero.WriteFile(d.fs, d.name, buf.Bytes(), 0600)
}

// Entries lists the directories, most visited first and then by path.
func (d *DirFreq) Entries() []DirEntry {
	out := make([]DirEntry, 0, len(d.counts))
	for p, c := range d.counts {
		out = append(out, DirEntry{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	return out
}
