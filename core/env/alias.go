package env

import "sort"

// Aliases maps a command name to the text that replaces it.
type Aliases struct {
	table map[string]string
}

// NewAliases creates an empty alias table.
func NewAliases() *Aliases {
	return &Aliases{table: make(map[string]string)}
}

// Set adds or replaces an alias.
func (a *Aliases) Set(name, value string) {
	a.table[name] = value
}

// Get looks up an alias.
func (a *Aliases) Get(name string) (string, bool) {
	v, ok := a.table[name]
	return v, ok
}

// Remove deletes an alias and reports whether it existed.
func (a *Aliases) Remove(name string) bool {
	_, ok := a.table[name]
	delete(a.table, name)
	return ok
}

// Clear deletes every alias.
func (a *Aliases) Clear() {
	a.table = make(map[string]string)
}

// Names returns the alias names in sorted order.
func (a *Aliases) Names() []string {
	out := make([]string, 0, len(a.table))
	for k := range a.table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len is the number of aliases.
func (a *Aliases) Len() int {
	return len(a.table)
}
