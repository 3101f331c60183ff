// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/chip"
)

func stringIfNotEmpty(prefix, val string) string {
	if len(val) > 0 {
		return fmt.Sprintf("%s %s\n", prefix, val)
	}
	return ""
}

// Parse decodes a config from TOML text. Relative data files are resolved
// against 'dir'. Segment data isn't loaded.
func Parse(text, dir string) (*Config, error) {
	var cfg = &Config{
		Target: &Target{FlashSize: chip.Flash4Mb},
	}
	_, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg.dir = dir

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	for i, q := range c.Quirks {
		if q.WriteProtect == 0 || q.WdtConfig == 0 {
			return fmt.Errorf("quirk %d (%s): wprotect and wdt_config are required", i, q.Chip)
		}
	}

	for i, s := range c.Segments {
		if len(s.DataFile) == 0 {
			return fmt.Errorf("segment %d (0x%08x): data_file is required", i, s.Address)
		}
	}

	return nil
}

func (c *Config) WriteTOML(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(f)
	err = enc.Encode(c)
	if err != nil {
		f.Close()
		return err
	}

	err = f.Close()
	return err
}

// LoadConfig reads a config file and the data files of its segments.
func LoadConfig(filename string) (*Config, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.New("couldn't determine absolute path")
	}

	text, err := ioutil.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(string(text), filepath.Dir(abs))
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}

	err = cfg.LoadData()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
