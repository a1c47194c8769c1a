package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/env"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	AliasesName       = "aliases"
	HistoryName       = "history"
	DirFreqName       = "dirfreq"
	EventsName        = "events.log"
)

type Configuration struct {
	configFs afero.Fs
	dir      string

	Prompt            string `json:"prompt" validate:"required"`
	ShowTiming        bool   `json:"show_timing"`
	TimingThresholdMs int    `json:"timing_threshold_ms" validate:"gte=0"`
	HistorySize       int    `json:"history_size" validate:"gte=0"`

	Env     map[string]string `json:"env" validate:"dive,keys,envname,endkeys"`
	Aliases map[string]string `json:"aliases" validate:"dive,keys,aliasname,endkeys,required"`

	// Autostart lines run in order before the first prompt.
	Autostart []string `json:"autostart" validate:"dive,required"`
	EnvFile   string   `json:"env_file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	_ = validate.RegisterValidation("envname", func(fl validator.FieldLevel) bool {
		return env.ValidName(fl.Field().String())
	})
	_ = validate.RegisterValidation("aliasname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name != "" && !strings.ContainsAny(name, " \t\n='\"/$|&;<>")
	})

	return validate.Struct(c)
}

// Dir is the directory the configuration was loaded from.
func (c *Configuration) Dir() string {
	return c.dir
}

// Fs is the configuration directory as a filesystem.
func (c *Configuration) Fs() afero.Fs {
	return c.configFs
}

// HistoryPath is the line editor's history file.
func (c *Configuration) HistoryPath() string {
	return filepath.Join(c.dir, HistoryName)
}

// OpenEvents opens the command event log in an append only state.
func (c *Configuration) OpenEvents() (afero.File, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	return c.configFs.OpenFile(EventsName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ensureDir() error {
	return c.configFs.MkdirAll(".", 0700)
}

// ApplyEnv adds the env_file and env entries to e, in that order.
func (c *Configuration) ApplyEnv(e *env.Environment) error {
	if c.EnvFile != "" {
		vars, err := c.readEnvFile()
		if err != nil {
			return err
		}
		e.Merge(vars)
	}

	e.Merge(c.Env)
	return nil
}

func (c *Configuration) readEnvFile() (map[string]string, error) {
	if filepath.IsAbs(c.EnvFile) {
		return godotenv.Read(c.EnvFile)
	}

	fd, err := c.configFs.Open(c.EnvFile)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return godotenv.Parse(fd)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Configuration {
	out := defaultConfig()
	out.dir = dir
	out.configFs = afero.NewBasePathFs(afero.NewOsFs(), dir)
	return out
}

// DefaultDir is where the configuration lives when none is given.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".squish"
	}
	return filepath.Join(home, ".config", "squish")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
