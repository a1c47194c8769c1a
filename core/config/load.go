package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory. A directory without a
// config.yaml gets the built-in defaults.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	return LoadFs(afero.NewBasePathFs(afero.NewOsFs(), path), path)
}

// LoadFs loads the configuration stored at the root of fsys.
func LoadFs(fsys afero.Fs, dir string) (*Configuration, error) {
	configContents, err := afero.ReadFile(fsys, ConfigurationName)
	switch {
	case isNotExist(err):
		out := defaultConfig()
		out.configFs = fsys
		out.dir = dir
		return out, nil
	case err != nil:
		return nil, err
	}

	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigurationName, err)
	}
	out.configFs = fsys
	out.dir = dir
	return &out, nil
}

// Initialize writes the default configuration into dir, leaving any existing
// files alone.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	fsys := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := InitializeFs(fsys, logger); err != nil {
		return nil, err
	}
	return LoadFs(fsys, dir)
}

// InitializeFs writes the default configuration into the root of fsys.
func InitializeFs(fsys afero.Fs, logger *log.Logger) error {
	if err := fsys.MkdirAll(".", 0700); err != nil {
		return err
	}

	for _, f := range []struct {
		name string
		data []byte
	}{
		{ConfigurationName, defaultConfigData},
		{AliasesName, nil},
	} {
		exists, err := afero.Exists(fsys, f.name)
		if err != nil {
			return err
		}
		if exists {
			logger.Printf("%s already exists, skipping", f.name)
			continue
		}

		logger.Printf("writing %s", f.name)
		if err := afero.WriteFile(fsys, f.name, f.data, 0600); err != nil {
			return err
		}
	}

	return nil
}
