// Package profile manages on-disk tuning profiles for the echo
// canceller: named, YAML-encoded snapshots of an aec.Config that the
// demo CLI can load by name instead of passing every tunable on the
// command line.
//
// This generalizes the teacher's client/internal/config package (same
// Default/Path/Load/Save shape, os.UserConfigDir rooted) from a single
// JSON preferences file to a directory of named YAML profiles.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rustyguts/bken-aec"
)

// Profile is the on-disk representation of a tuning profile: aec.Config
// plus a human label. Profile fields mirror aec.Config directly so the
// YAML file reads as a flat, editable tuning sheet.
type Profile struct {
	Name string `yaml:"name"`

	SampleRate int `yaml:"sample_rate"`
	BlockSize  int `yaml:"block_size"`

	FilterLength int `yaml:"filter_length"`

	StepSize       float64 `yaml:"step_size"`
	Regularization float64 `yaml:"regularization"`
	LeakageFactor  float64 `yaml:"leakage_factor"`

	PowerRatioThreshold  float64 `yaml:"power_ratio_threshold"`
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	HangoverSamples      int     `yaml:"hangover_samples"`

	WindowSize int `yaml:"window_size"`
	MaxDelay   int `yaml:"max_delay"`

	MetricsInterval int `yaml:"metrics_interval"`
}

// Default returns a Profile populated from aec.DefaultConfig().
func Default() Profile {
	return FromConfig("default", aec.DefaultConfig())
}

// FromConfig copies cfg's tunables into a named Profile.
func FromConfig(name string, cfg aec.Config) Profile {
	return Profile{
		Name:                 name,
		SampleRate:           cfg.SampleRate,
		BlockSize:            cfg.BlockSize,
		FilterLength:         cfg.FilterLength,
		StepSize:             cfg.StepSize,
		Regularization:       cfg.Regularization,
		LeakageFactor:        cfg.LeakageFactor,
		PowerRatioThreshold:  cfg.PowerRatioThreshold,
		CorrelationThreshold: cfg.CorrelationThreshold,
		HangoverSamples:      cfg.HangoverSamples,
		WindowSize:           cfg.WindowSize,
		MaxDelay:             cfg.MaxDelay,
		MetricsInterval:      cfg.MetricsInterval,
	}
}

// Config converts p back into an aec.Config, keeping the queue
// capacities at aec.DefaultConfig()'s values since those are not
// tuning parameters a profile file is meant to carry.
func (p Profile) Config() aec.Config {
	cfg := aec.DefaultConfig()
	cfg.SampleRate = p.SampleRate
	cfg.BlockSize = p.BlockSize
	cfg.FilterLength = p.FilterLength
	cfg.StepSize = p.StepSize
	cfg.Regularization = p.Regularization
	cfg.LeakageFactor = p.LeakageFactor
	cfg.PowerRatioThreshold = p.PowerRatioThreshold
	cfg.CorrelationThreshold = p.CorrelationThreshold
	cfg.HangoverSamples = p.HangoverSamples
	cfg.WindowSize = p.WindowSize
	cfg.MaxDelay = p.MaxDelay
	cfg.MetricsInterval = p.MetricsInterval
	return cfg
}

// Dir returns the directory profiles are stored under:
// os.UserConfigDir()/bken-aec/profiles.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bken-aec", "profiles"), nil
}

func pathFor(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".yaml"), nil
}

// Load reads the named profile. If it does not exist or fails to
// parse, Default() is returned rather than an error, matching the
// teacher's config.Load fallback behavior.
func Load(name string) Profile {
	path, err := pathFor(name)
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Default()
	}
	return p
}

// Save writes p to disk under its own Name, creating the profiles
// directory if needed.
func Save(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile: name must not be empty")
	}
	path, err := pathFor(p.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// List returns the names of all saved profiles (filenames without the
// .yaml extension), sorted by file name.
func List() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".yaml")])
	}
	return names, nil
}
