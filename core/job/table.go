package job

import "sort"

// Table holds every job that hasn't been reported as finished.
type Table struct {
	jobs       map[int]*Job
	lastID     int
	foreground int
}

// NewTable creates an empty job table.
func NewTable() *Table {
	return &Table{jobs: make(map[int]*Job)}
}

// Add assigns the job the next id. Ids are never reused.
func (t *Table) Add(j *Job) int {
	t.lastID++
	j.ID = t.lastID
	t.jobs[j.ID] = j
	return j.ID
}

// Get looks up a job by id.
func (t *Table) Get(id int) (*Job, bool) {
	j, ok := t.jobs[id]
	return j, ok
}

// Remove deletes a job from the table.
func (t *Table) Remove(id int) {
	if t.foreground == id {
		t.ClearForeground()
	}
	delete(t.jobs, id)
}

// List returns the jobs ordered by id.
func (t *Table) List() []*Job {
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Current is the highest numbered job that hasn't finished, which is the
// default for fg and bg.
func (t *Table) Current() *Job {
	var cur *Job
	for _, j := range t.jobs {
		if j.State == Done {
			continue
		}
		if cur == nil || j.ID > cur.ID {
			cur = j
		}
	}
	return cur
}

// FindPid returns the job and member with the given pid.
func (t *Table) FindPid(pid int) (*Job, *Process) {
	for _, j := range t.jobs {
		if p := j.find(pid); p != nil {
			return j, p
		}
	}
	return nil, nil
}

// SetForeground marks the job as holding the terminal. Only one job holds
// it at a time.
func (t *Table) SetForeground(id int) {
	t.ClearForeground()
	if j, ok := t.jobs[id]; ok {
		j.Foreground = true
		t.foreground = id
	}
}

// ClearForeground returns the terminal to the shell.
func (t *Table) ClearForeground() {
	if j, ok := t.jobs[t.foreground]; ok {
		j.Foreground = false
	}
	t.foreground = 0
}

// Foreground is the job holding the terminal, if any.
func (t *Table) Foreground() *Job {
	return t.jobs[t.foreground]
}

// Active counts background jobs that haven't finished.
func (t *Table) Active() int {
	n := 0
	for _, j := range t.jobs {
		if !j.Foreground && j.State != Done {
			n++
		}
	}
	return n
}

// HasStopped is true if any job is stopped.
func (t *Table) HasStopped() bool {
	for _, j := range t.jobs {
		if j.State == Stopped {
			return true
		}
	}
	return false
}

// Marker is "+" for the current job, "-" for the previous one and " "
// otherwise.
func (t *Table) Marker(j *Job) string {
	var ids []int
	for _, o := range t.jobs {
		if o.State != Done || o == j {
			ids = append(ids, o.ID)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	switch {
	case len(ids) > 0 && ids[0] == j.ID:
		return "+"
	case len(ids) > 1 && ids[1] == j.ID:
		return "-"
	default:
		return " "
	}
}
