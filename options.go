package wirechat

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Options configures a Client. Wire-compatibility values (retry ceiling,
// MAC length, key sizes) are fixed constants in the limits package and are
// deliberately not configurable here.
type Options struct {
	// PushName is the display name stamped on outbound messages.
	PushName string `yaml:"push_name"`

	// MarkOnlineOnConnect enables active delivery receipts as soon as the
	// connection comes up. When false, inbound messages are receipted as
	// "inactive" until the application toggles presence.
	MarkOnlineOnConnect bool `yaml:"mark_online_on_connect"`

	// MessageDBPath selects the SQLite message database. Empty means the
	// in-memory message store.
	MessageDBPath string `yaml:"message_db_path"`

	// PreKeyUploadInterval is the minimum spacing between pre-key
	// replenishment uploads triggered by server count notifications.
	PreKeyUploadInterval Duration `yaml:"prekey_upload_interval"`

	// LogLevel sets the logrus level: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// NewOptions returns the default configuration.
func NewOptions() *Options {
	return &Options{
		PushName:             "wirechat",
		MarkOnlineOnConnect:  true,
		PreKeyUploadInterval: Duration(30 * time.Second),
		LogLevel:             "info",
	}
}

// LoadOptions reads a YAML configuration file over the defaults.
func LoadOptions(path string) (*Options, error) {
	opts := NewOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return opts, nil
}
