// Copyright 2024 The vmmguard Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for vmmfilter. Settings come from command line flags and, optionally, a
// TOML file named by --config.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Config holds configuration that applies to every thread filter. Fields
// tagged with `flag` are populated from the flag of that name; fields
// tagged with `toml` can also be set from the config file.
type Config struct {
	// ABI is the C library the VMM is linked against.
	ABI filterconfig.ABI `flag:"abi" toml:"abi"`

	// DenyAction is what happens to a thread that makes a denied call.
	DenyAction seccomp.Action `flag:"deny-action" toml:"deny_action"`

	// VFIO allows device pass-through ioctls on the main thread.
	VFIO bool `flag:"vfio" toml:"vfio"`

	// Vhost allows vhost ioctls on the main and I/O threads.
	Vhost bool `flag:"vhost" toml:"vhost"`

	// Tap allows TUN/TAP ioctls on the main and I/O threads.
	Tap bool `flag:"tap" toml:"tap"`

	// AllowUnconfined lets threads run without a filter when the kernel
	// refuses to install one. Never set this in production.
	AllowUnconfined bool `flag:"allow-unconfined" toml:"allow_unconfined"`

	// Debug enables debug logging.
	Debug bool `flag:"debug" toml:"debug"`

	// LogFilename is the file path where logs are written. Empty means
	// stderr.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `flag:"log-format" toml:"log_format"`

	// ViolationLogInterval is the minimum time between two logged seccomp
	// violations, after an initial burst. Zero logs every violation.
	ViolationLogInterval time.Duration `flag:"violation-log-interval" toml:"violation_log_interval"`

	// ConfigFile is the TOML file the configuration was read from.
	ConfigFile string `flag:"config" toml:"-"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.ViolationLogInterval < 0 {
		return fmt.Errorf("violation-log-interval must not be negative: %v", c.ViolationLogInterval)
	}
	return c.FilterOptions(filterconfig.RoleMain).Validate()
}

// FilterOptions returns the filter options for a thread of the given role.
func (c *Config) FilterOptions(role filterconfig.Role) filterconfig.Options {
	return filterconfig.Options{
		Role:            role,
		ABI:             c.ABI,
		VFIO:            c.VFIO,
		Vhost:           c.Vhost,
		Tap:             c.Tap,
		DenyAction:      c.DenyAction,
		AllowUnconfined: c.AllowUnconfined,
	}
}

// loadFile reads the TOML file at path into c. Keys that do not name a
// setting are an error.
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config file %q: %v", path, undecoded)
	}
	return nil
}

// Log writes every flag backed setting to the info log.
func (c *Config) Log() {
	log.Infof("Config:")
	for name, field := range c.flagFields() {
		log.Infof("\t%s: %s", name, formatField(field))
	}
}
