// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sqreen/go-detour/internal/plog"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	logger := plog.NewLogger(plog.Debug, os.Stderr, nil)
	cfg, err := New(logger)
	require.NoError(t, err)
	require.Equal(t, plog.Error, cfg.LogLevel())
	require.Equal(t, configDefaultReturnBufferMaxSize, cfg.ReturnBufferMaxSize())
	require.False(t, cfg.DumpIL())
	require.True(t, cfg.EagerActivation())
}

func TestEnvironmentConfiguration(t *testing.T) {
	logger := plog.NewLogger(plog.Debug, os.Stderr, nil)

	for _, tc := range []struct {
		Name  string
		Key   string
		Value string
		Check func(t *testing.T, cfg *Config)
	}{
		{
			Name:  "log level",
			Key:   configKeyLogLevel,
			Value: " Debug ",
			Check: func(t *testing.T, cfg *Config) {
				require.Equal(t, plog.Debug, cfg.LogLevel())
			},
		},
		{
			Name:  "return buffer threshold",
			Key:   configKeyReturnBufferMaxSize,
			Value: "8",
			Check: func(t *testing.T, cfg *Config) {
				require.Equal(t, 8, cfg.ReturnBufferMaxSize())
			},
		},
		{
			Name:  "il dump",
			Key:   configKeyDumpIL,
			Value: "true",
			Check: func(t *testing.T, cfg *Config) {
				require.True(t, cfg.DumpIL())
			},
		},
		{
			Name:  "lazy activation",
			Key:   configKeyEagerActivation,
			Value: "false",
			Check: func(t *testing.T, cfg *Config) {
				require.False(t, cfg.EagerActivation())
			},
		},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			envVar := strings.ToUpper(configEnvPrefix + "_" + tc.Key)
			os.Setenv(envVar, tc.Value)
			defer os.Unsetenv(envVar)
			cfg, err := New(logger)
			require.NoError(t, err)
			tc.Check(t, cfg)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	logger := plog.NewLogger(plog.Debug, os.Stderr, nil)

	for _, value := range []string{"-1", "17", "64"} {
		value := value
		t.Run(value, func(t *testing.T) {
			envVar := strings.ToUpper(configEnvPrefix + "_" + configKeyReturnBufferMaxSize)
			os.Setenv(envVar, value)
			defer os.Unsetenv(envVar)
			cfg, err := New(logger)
			require.Error(t, err)
			require.Nil(t, cfg)
		})
	}
}

func TestFileLocation(t *testing.T) {
	logger := plog.NewLogger(plog.Debug, os.Stderr, nil)

	tmpDir, err := ioutil.TempDir("", "detour-config")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, "patcher.yml")
	require.NoError(t, ioutil.WriteFile(tmpFile, []byte("return_buffer_max_size: 8\ndump_il: true\n"), 0600))

	envVar := strings.ToUpper(configEnvPrefix + "_" + configEnvKeyConfigFile)
	os.Setenv(envVar, tmpFile)
	defer os.Unsetenv(envVar)

	cfg, err := New(logger)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.ReturnBufferMaxSize())
	require.True(t, cfg.DumpIL())
}

func TestUnreadableFile(t *testing.T) {
	errs := make(chan error, 1)
	logger := plog.NewLogger(plog.Debug, os.Stderr, errs)

	envVar := strings.ToUpper(configEnvPrefix + "_" + configEnvKeyConfigFile)
	os.Setenv(envVar, filepath.Join(os.TempDir(), "detour-config-missing", "detour.yml"))
	defer os.Unsetenv(envVar)

	// Falls back to the defaults.
	cfg, err := New(logger)
	require.NoError(t, err)
	require.Equal(t, configDefaultReturnBufferMaxSize, cfg.ReturnBufferMaxSize())
	require.Error(t, <-errs)
}
