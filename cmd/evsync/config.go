package main

import (
	"fmt"
	"os"

	"github.com/go-ini/ini"
)

// Config is the on-disk configuration. Every value can be overridden by
// a flag; the file just saves retyping them for a pet device.
type Config struct {
	Device struct {
		Path        string
		Grab        bool
		Nonblocking bool
	}

	Dump struct {
		Color bool
	}
}

func defaultConfig() Config {
	var c Config
	c.Dump.Color = true
	return c
}

// LoadConfig reads an ini config file. A missing file is not an error:
// the defaults apply and flags do the rest.
func LoadConfig(path string) (Config, error) {
	c := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg, err := ini.Load(data)
	if err != nil {
		return c, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	// [device]
	device := cfg.Section("device")
	if key, err := device.GetKey("path"); err == nil {
		c.Device.Path = key.Value()
	}
	if key, err := device.GetKey("grab"); err == nil {
		if c.Device.Grab, err = key.Bool(); err != nil {
			return c, fmt.Errorf("device.grab: %w", err)
		}
	}
	if key, err := device.GetKey("nonblocking"); err == nil {
		if c.Device.Nonblocking, err = key.Bool(); err != nil {
			return c, fmt.Errorf("device.nonblocking: %w", err)
		}
	}

	// [dump]
	dump := cfg.Section("dump")
	if key, err := dump.GetKey("color"); err == nil {
		if c.Dump.Color, err = key.Bool(); err != nil {
			return c, fmt.Errorf("dump.color: %w", err)
		}
	}

	return c, nil
}
