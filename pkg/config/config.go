// Package config loads typed configuration structs from the environment.
// An optional .env file (./.env by default, overridable with -env) is exported
// into the process environment first, then envconfig fills the struct from
// variables under the given prefix (OPENROUTER_*, TOOLS_*, LOG_*, ...).
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	envFile  string
	loadOnce sync.Once
	loadErr  error
)

// MustNew panics on any load error. Configuration problems are fatal at
// startup; there is nothing sensible to do with a half-configured process.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(fmt.Sprintf("config %q: %v", prefix, err))
	}
	return conf
}

func New[T any](prefix string) (*T, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// loadEnvFile exports the .env file into the environment exactly once per
// process, no matter how many configs are loaded.
func loadEnvFile() error {
	loadOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFile, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}

		path := strings.TrimSpace(envFile)
		if path == "" {
			path = ".env"
			if !fileExists(path) {
				return
			}
		}
		loadErr = exportEnvironment(path)
	})
	return loadErr
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for key, value := range v.AllSettings() {
		name := strings.ToUpper(key)
		// Explicit environment always wins over the file.
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}
