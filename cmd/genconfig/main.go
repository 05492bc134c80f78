// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jarkko793/backend/common"
	"github.com/jarkko793/backend/config"
)

const configFileName = "node.toml"

// genConfig holds the parsed command line flags.
type genConfig struct {
	outDir      string
	logFile     string
	logLevel    string
	archiveFile string
	metricsAddr string
	noMetrics   bool
	check       string
}

func newRootCommand() *cobra.Command {
	var cfg genConfig

	cmd := &cobra.Command{
		Use:   "genconfig",
		Short: "Generate node configuration files",
		Long: `Generate a node configuration file with sane defaults, or validate an
existing one.  The generated file carries every section the node reads:
logging, the delivery archive, the metrics listener and the debug knobs.`,
		Example: `  # Generate a default configuration under ./conf
  genconfig --outDir ./conf

  # Generate a configuration with a delivery archive
  genconfig --outDir ./conf --archive /var/lib/node/archive.db

  # Validate an existing configuration file
  genconfig --check ./conf/node.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenConfig(&cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.outDir, "outDir", "o", "",
		"output directory path for the generated configuration file")
	cmd.Flags().StringVar(&cfg.logFile, "logFile", "",
		"absolute path of the log file, stdout when omitted")
	cmd.Flags().StringVar(&cfg.logLevel, "logLevel", "NOTICE",
		"log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")
	cmd.Flags().StringVar(&cfg.archiveFile, "archive", "",
		"absolute path of the delivery archive database, disabled when omitted")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metricsAddr", "",
		"listener address for the Prometheus metrics endpoint")
	cmd.Flags().BoolVar(&cfg.noMetrics, "noMetrics", false,
		"disable the Prometheus metrics listener")
	cmd.Flags().StringVarP(&cfg.check, "check", "c", "",
		"validate the given configuration file instead of generating one")

	return cmd
}

func runGenConfig(cfg *genConfig) error {
	if cfg.check != "" {
		if _, err := config.LoadFile(cfg.check); err != nil {
			return fmt.Errorf("failed to load config file: %v", err)
		}
		fmt.Printf("%s is valid\n", cfg.check)
		return nil
	}

	if cfg.outDir == "" {
		return fmt.Errorf("config file must be specified with --outDir or --check")
	}

	nodeCfg := &config.Config{
		Logging: &config.Logging{
			File:  cfg.logFile,
			Level: cfg.logLevel,
		},
		Archive: &config.Archive{
			Enable: cfg.archiveFile != "",
			File:   cfg.archiveFile,
		},
		Metrics: &config.Metrics{
			Disable: cfg.noMetrics,
			Address: cfg.metricsAddr,
		},
	}
	if err := nodeCfg.FixupAndValidate(); err != nil {
		return err
	}

	return saveCfg(nodeCfg, cfg.outDir)
}

func saveCfg(cfg *config.Config, outDir string) error {
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return fmt.Errorf("os.MkdirAll(%s) failed: %s", outDir, err)
	}
	fileName := filepath.Join(outDir, configFileName)
	log.Printf("writing %s", fileName)
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("os.Create(%s) failed: %s", fileName, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}
