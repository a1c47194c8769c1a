package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := defaultConfig()
	assert.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFs(t *testing.T) {
	cases := map[string]struct {
		config  string
		wantErr string
		check   func(t *testing.T, cfg *Configuration)
	}{
		"missing file uses defaults": {
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, defaultConfig().Prompt, cfg.Prompt)
			},
		},
		"custom": {
			config: "prompt: '> '\nshow_timing: true\ntiming_threshold_ms: 10\nautostart: ['echo hi']\n",
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, "> ", cfg.Prompt)
				assert.True(t, cfg.ShowTiming)
				assert.Equal(t, 10, cfg.TimingThresholdMs)
				assert.Equal(t, []string{"echo hi"}, cfg.Autostart)
			},
		},
		"unknown field": {
			config:  "prompt: x\ncolour: blue\n",
			wantErr: "colour",
		},
		"negative threshold": {
			config:  "prompt: x\ntiming_threshold_ms: -1\n",
			wantErr: "timing_threshold_ms",
		},
		"bad variable name": {
			config:  "prompt: x\nenv:\n  1BAD: x\n",
			wantErr: "envname",
		},
		"bad alias name": {
			config:  "prompt: x\naliases:\n  'a b': ls\n",
			wantErr: "aliasname",
		},
		"empty autostart line": {
			config:  "prompt: x\nautostart: ['']\n",
			wantErr: "autostart",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if tc.config != "" {
				require.NoError(t, afero.WriteFile(fsys, ConfigurationName, []byte(tc.config), 0600))
			}

			cfg, err := LoadFs(fsys, "/cfg")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/cfg", cfg.Dir())
			tc.check(t, cfg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "vars.env", []byte("EDITOR=vim\nPAGER=more\n# comment\n"), 0600))

	cfg := defaultConfig()
	cfg.configFs = fsys
	cfg.EnvFile = "vars.env"
	cfg.Env = map[string]string{"PAGER": "less"}

	e := env.NewFromList([]string{"EDITOR=nano", "HOME=/home/me"})
	require.NoError(t, cfg.ApplyEnv(e))

	// process < env_file < config
	assert.Equal(t, "vim", e.Get("EDITOR"))
	assert.Equal(t, "less", e.Get("PAGER"))
	assert.Equal(t, "/home/me", e.Get("HOME"))

	cfg.EnvFile = "missing.env"
	assert.Error(t, cfg.ApplyEnv(e))
}

func TestAliasesFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfg := defaultConfig()
	cfg.configFs = fsys

	aliases := env.NewAliases()
	require.NoError(t, cfg.LoadAliases(aliases), "missing file is fine")
	assert.Equal(t, 0, aliases.Len())

	aliases.Set("ll", "ls -lah")
	aliases.Set("say", "echo it's")
	require.NoError(t, cfg.SaveAliases(aliases))

	data, err := afero.ReadFile(fsys, AliasesName)
	require.NoError(t, err)
	assert.Equal(t, "alias ll='ls -lah'\nalias say='echo it'\\''s'\n", string(data))

	loaded := env.NewAliases()
	require.NoError(t, cfg.LoadAliases(loaded))
	assert.Equal(t, []string{"ll", "say"}, loaded.Names())
	v, _ := loaded.Get("say")
	assert.Equal(t, "echo it's", v)
}

func TestParseAliasLine(t *testing.T) {
	cases := map[string]struct {
		line  string
		name  string
		value string
		err   bool
	}{
		"single quoted": {line: "alias gs='git status'", name: "gs", value: "git status"},
		"double quoted": {line: `alias gs="git status"`, name: "gs", value: "git status"},
		"bare":          {line: "alias g=git", name: "g", value: "git"},
		"empty value":   {line: "alias g=''", name: "g", value: ""},
		"not an alias":  {line: "export A=b", err: true},
		"no value":      {line: "alias g", err: true},
		"unterminated":  {line: "alias g='git", err: true},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			name, value, err := ParseAliasLine(tc.line)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.value, value)
		})
	}
}
