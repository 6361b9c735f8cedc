package main

import (
	"bufio"
	"os"
	"reflect"
	"strings"

	"github.com/naoina/toml"
)

// tomlSettings customizes field-name normalization: a field with a toml
// struct tag (every field of config has one) uses the tag as its key,
// an untagged field matches its lower-cased Go field name, and unknown
// keys are tolerated rather than rejected.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return strings.ToLower(key)
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return strings.ToLower(field)
	},
	MissingField: func(rt reflect.Type, key string) error {
		return nil
	},
}

// config is the on-disk bootstrap configuration: urfave/cli flags cover
// one-shot overrides, this struct covers the persistent TOML file.
type config struct {
	DataDir      string `toml:"datadir"`
	MetaTreeName string `toml:"meta_tree"`
	CacheSizeMB  int    `toml:"cache_size_mb"`
	Handles      int    `toml:"handles"`
	MaxLocks     int    `toml:"max_locks"`
}

func defaultConfig() config {
	return config{
		DataDir:      "./pagestore-data",
		MetaTreeName: "__meta__",
		CacheSizeMB:  64,
		Handles:      256,
		MaxLocks:     1024,
	}
}

// loadConfig reads a TOML file into the defaults, leaving fields absent
// from the file untouched. A missing path is not an error — callers rely
// entirely on CLI flags and the defaults in that case.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
