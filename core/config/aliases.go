package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/env"
)

// LoadAliases reads the aliases file into a. Each line has the form
// alias name='value'. A missing file is not an error.
func (c *Configuration) LoadAliases(a *env.Aliases) error {
	data, err := afero.ReadFile(c.configFs, AliasesName)
	switch {
	case isNotExist(err):
		return nil
	case err != nil:
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, err := ParseAliasLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", AliasesName, lineNo, err)
		}
		a.Set(name, value)
	}
	return scanner.Err()
}

// ParseAliasLine splits a line of the form alias name='value'.
func ParseAliasLine(line string) (string, string, error) {
	tokens, err := shlex.Split(line, true)
	if err != nil {
		return "", "", err
	}
	if len(tokens) != 2 || tokens[0] != "alias" {
		return "", "", fmt.Errorf("expected alias name='value'")
	}

	name, value, ok := strings.Cut(tokens[1], "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected alias name='value'")
	}
	return name, value, nil
}

// FormatAlias renders an alias the way the aliases file stores it.
func FormatAlias(name, value string) string {
	return fmt.Sprintf("alias %s=%s", name, Quote(value))
}

// Quote single quotes s for the shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SaveAliases rewrites the aliases file with the contents of a.
func (c *Configuration) SaveAliases(a *env.Aliases) error {
	if err := c.ensureDir(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, name := range a.Names() {
		value, _ := a.Get(name)
		fmt.Fprintln(&buf, FormatAlias(name, value))
	}
	return afero.WriteFile(c.configFs, AliasesName, buf.Bytes(), 0600)
}
