// Package env holds the variable and alias tables owned by the shell.
package env

import (
	"fmt"
	"sort"
	"strings"
)

// Environment is the set of variables copied into every child process.
type Environment struct {
	env map[string]string
}

// New creates an empty environment.
func New() *Environment {
	return &Environment{env: make(map[string]string)}
}

// NewFromList creates an environment from KEY=VALUE pairs; a pair with no
// "=" sets the key to the empty string.
func NewFromList(environ []string) *Environment {
	out := New()
	for _, e := range environ {
		key, value := splitPair(e)
		out.Set(key, value)
	}
	return out
}

func splitPair(e string) (string, string) {
	split := strings.SplitN(e, "=", 2)
	key, value := split[0], ""
	if len(split) > 1 {
		value = split[1]
	}
	return key, value
}

// Set sets a variable.
func (m *Environment) Set(key, value string) {
	m.env[key] = value
}

// Unset removes a variable, doing nothing if it isn't set.
func (m *Environment) Unset(key string) {
	delete(m.env, key)
}

// Lookup gets a variable and reports whether it was set.
func (m *Environment) Lookup(key string) (string, bool) {
	val, ok := m.env[key]
	return val, ok
}

// Get gets a variable, unset variables are empty.
func (m *Environment) Get(key string) string {
	val, _ := m.Lookup(key)
	return val
}

// Merge sets every variable in vars.
func (m *Environment) Merge(vars map[string]string) {
	for k, v := range vars {
		m.Set(k, v)
	}
}

// Environ returns KEY=VALUE pairs sorted by key.
func (m *Environment) Environ() []string {
	keys := make([]string, 0, len(m.env))
	for k := range m.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, m.env[k]))
	}
	return env
}

// HomeDir returns $HOME.
func (m *Environment) HomeDir() string {
	return m.Get("HOME")
}

// ValidName reports whether name can be used as a variable name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
