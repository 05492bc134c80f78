// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the node configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultLogLevel          = "NOTICE"
	defaultMaxResendAttempts = 3
	defaultMetricsAddress    = "127.0.0.1:6543"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lCfg.Level = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Debug is the debug configuration.
type Debug struct {
	// MaxResendAttempts is the number of times a negatively acknowledged
	// fragment is resent before its message is reported as failed.
	MaxResendAttempts int
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.MaxResendAttempts <= 0 {
		dCfg.MaxResendAttempts = defaultMaxResendAttempts
	}
}

// Archive is the delivery archive configuration.
type Archive struct {
	// Enable enables write-through archiving of messages and fragments.
	Enable bool

	// File is the database file used by the archive.
	File string
}

func (aCfg *Archive) validate() error {
	if !aCfg.Enable {
		return nil
	}
	if aCfg.File == "" {
		return errors.New("config: Archive: File must be set when Enable is true")
	}
	if !filepath.IsAbs(aCfg.File) {
		return fmt.Errorf("config: Archive: File '%v' is not an absolute path", aCfg.File)
	}
	return nil
}

// Metrics is the instrumentation configuration.
type Metrics struct {
	// Disable disables the Prometheus metrics listener.
	Disable bool

	// Address is the listener address for the metrics endpoint.
	Address string
}

func (mCfg *Metrics) applyDefaults() {
	if mCfg.Address == "" {
		mCfg.Address = defaultMetricsAddress
	}
}

// Config is the top level node configuration.
type Config struct {
	Logging *Logging
	Archive *Archive
	Metrics *Metrics

	Debug *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Logging == nil {
		cfg.Logging = &defaultLogging
	}
	if cfg.Archive == nil {
		cfg.Archive = &Archive{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}

	// Perform basic validation.
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Archive.validate(); err != nil {
		return err
	}
	cfg.Metrics.applyDefaults()
	cfg.Debug.applyDefaults()

	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
