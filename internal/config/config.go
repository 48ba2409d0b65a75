// Package config loads the daemon's optional YAML settings file. The
// daemon is fully functional without one; a file only lets an
// operator change the timing/sizing constants without a recompile.
// CLI flags always win over values loaded here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of the optional YAML config file.
type File struct {
	ClientTimeout string `yaml:"client_timeout"`
	ClientTPass   string `yaml:"client_tpass"`
	BufferSize    int    `yaml:"buffer_size"`
	MaxDumps      int    `yaml:"max_dumps"`
	MaxPayload    int    `yaml:"max_payload"`

	MetricsListen string `yaml:"metrics_listen"`
	AdminSocket   string `yaml:"admin_socket"`

	NotifyTimeout string `yaml:"notify_timeout"`

	SandboxUID int `yaml:"sandbox_uid"`
	SandboxGID int `yaml:"sandbox_gid"`
}

// Load reads and parses path. A missing path is not an error — it
// simply means no file was supplied — but a present, unparsable file
// is.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Duration parses a Go duration string field, returning fallback if
// the field is empty or malformed. A malformed value is not reported
// and not fatal; it is treated the same as an empty field.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
