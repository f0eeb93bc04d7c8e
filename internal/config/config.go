// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package config reads the patcher settings from the environment (`DETOUR_`
// prefix) or from an optional configuration file. Defaults suit the x86-64
// System V calling convention.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sqreen/go-detour/internal/plog"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"

	"github.com/spf13/viper"
)

type Config struct {
	*viper.Viper
}

const (
	configEnvPrefix    = `detour`
	configFileBasename = `detour`
)

const (
	configEnvKeyConfigFile = `config_file`

	configKeyLogLevel            = `log_level`
	configKeyReturnBufferMaxSize = `return_buffer_max_size`
	configKeyDumpIL              = `dump_il`
	configKeyEagerActivation     = `eager_activation`
)

// User configuration's default values.
const (
	configDefaultLogLevel = `error`
	// Largest value-type return, in bytes, still returned in registers.
	// Larger ones are returned through a hidden pointer argument.
	configDefaultReturnBufferMaxSize = 16
	configDefaultDumpIL              = false
	configDefaultEagerActivation     = true
)

// Bounds of the return buffer threshold: no supported ABI returns more than
// two eightbytes in registers.
const (
	minReturnBufferMaxSize = 0
	maxReturnBufferMaxSize = 16
)

// Configurable parameters and their defaults.
var parameters = []struct {
	key          string
	defaultValue interface{}
}{
	{key: configKeyLogLevel, defaultValue: configDefaultLogLevel},
	{key: configKeyReturnBufferMaxSize, defaultValue: configDefaultReturnBufferMaxSize},
	{key: configKeyDumpIL, defaultValue: configDefaultDumpIL},
	{key: configKeyEagerActivation, defaultValue: configDefaultEagerActivation},
}

// New reads the configuration. A configuration file that cannot be read is
// logged and ignored, while invalid values are returned as an error.
func New(logger *plog.Logger) (*Config, error) {
	logger = logger.Scope("config")
	manager := viper.New()
	manager.SetEnvPrefix(configEnvPrefix)
	manager.AutomaticEnv()
	manager.SetConfigName(configFileBasename)
	for _, p := range parameters {
		manager.SetDefault(p.key, p.defaultValue)
	}

	configFileEnvVar := strings.ToUpper(configEnvPrefix + "_" + configEnvKeyConfigFile)
	configFile := os.Getenv(configFileEnvVar)
	setConfigFileLocation(manager, configFileEnvVar, configFile, logger)

	readErr := manager.ReadInConfig()
	switch fileUsed := manager.ConfigFileUsed(); {
	case fileUsed == "":
		logger.Infof("reading configuration settings from environment variables")
	case readErr != nil:
		logger.Error(sqerrors.Wrapf(readErr, "could not read the configuration file `%s`: falling back to environment variables", fileUsed))
	default:
		logger.Infof("reading configuration settings from file `%s`", fileUsed)
	}

	cfg := &Config{Viper: manager}
	if logger.Level() == plog.Debug {
		logger.Debugf("setting: %s = %q", configFileEnvVar, configFile)
		for _, p := range parameters {
			logger.Debugf("setting: %s = %q", p.key, cfg.GetString(p.key))
		}
	}

	if err := cfg.health(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setConfigFileLocation tells viper where to look for the configuration file:
// the file enforced by the environment, else the working directory then the
// executable's directory.
func setConfigFileLocation(manager *viper.Viper, envVar, configFile string, logger *plog.Logger) {
	if configFile != "" {
		manager.SetConfigFile(configFile)
		logger.Infof("configuration file enforced by the environment variable `%s` to `%s`", envVar, configFile)
		return
	}
	manager.AddConfigPath(`.`)
	exec, err := os.Executable()
	if err != nil {
		logger.Error(sqerrors.Wrap(err, "could not read the executable file path"))
		return
	}
	manager.AddConfigPath(filepath.Dir(exec))
}

// LogLevel returns the log level.
func (c *Config) LogLevel() plog.LogLevel {
	return plog.ParseLogLevel(sanitizeString(c.GetString(configKeyLogLevel)))
}

// ReturnBufferMaxSize returns the size in bytes of the largest value-type
// return value which is still returned in registers.
func (c *Config) ReturnBufferMaxSize() int {
	return c.GetInt(configKeyReturnBufferMaxSize)
}

// DumpIL returns true when the instructions of every synthesized method
// should be logged at debug level.
func (c *Config) DumpIL() bool {
	return c.GetBool(configKeyDumpIL)
}

// EagerActivation returns true when synthesized methods should be activated
// right after their synthesis instead of on their first call.
func (c *Config) EagerActivation() bool {
	return c.GetBool(configKeyEagerActivation)
}

func sanitizeString(s string) string {
	return strings.TrimSpace(s)
}

func (c *Config) health() error {
	if n := c.ReturnBufferMaxSize(); n < minReturnBufferMaxSize || n > maxReturnBufferMaxSize {
		return sqerrors.Errorf("invalid return buffer threshold `%d`: expecting a value between %d and %d bytes", n, minReturnBufferMaxSize, maxReturnBufferMaxSize)
	}
	return nil
}
