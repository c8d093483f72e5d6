package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/offload"
)

// the parsed TOML configuration data
var tc tomlConfig

type tomlConfig struct {
	Worker  workerConfig
	Logging isovol.LogConfig
	Cache   map[string]sizeConfig
}

type workerConfig struct {
	Address string
}

type sizeConfig struct {
	Size int
}

// LoadConfig reads configuration from a TOML file and installs the configured
// logger.
func LoadConfig(filename string) error {
	if _, err := toml.DecodeFile(filename, &tc); err != nil {
		return fmt.Errorf("could not decode TOML config: %v", err)
	}
	tc.Logging.SetLogger()
	return nil
}

// CacheSize returns the number of bytes reserved for the given identifier.
// If unset, will return 0.
func CacheSize(id string) int {
	if tc.Cache == nil {
		return 0
	}
	setting, found := tc.Cache[id]
	if !found {
		return 0
	}
	return setting.Size * isovol.Mega
}

// WorkerAddress resolves the worker daemon address: the command-line flag
// wins, then the config file, then the default.
func WorkerAddress(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if tc.Worker.Address != "" {
		return tc.Worker.Address
	}
	return offload.DefaultAddress
}
