// Package config loads session/runtime settings for the ELM327 driver
// and interface façade: candidate baud rates, serial read timeouts, the
// protocol try order, and the reset-confirmation token lifetime. None
// of this is vehicle data or persisted state (spec.md §6: "Persisted
// state: none") — it only configures how the core talks to a scan tool.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the struct-tagged document config.Load unmarshals, the
// same shape the reference TNC driver's deviceid.go loads its
// tocalls.yaml into, narrowed here to typed fields instead of a raw
// map[string]interface{} since this document has a fixed, known shape.
type Config struct {
	// CandidateBauds is the order Driver.DetectBaud tries, in bits per
	// second.
	CandidateBauds []int `yaml:"candidate_bauds"`

	// SerialOverallTimeout and SerialPollInterval are the two time
	// budgets spec.md §4.1 gives read_until: overall deadline and
	// polling interval.
	SerialOverallTimeout time.Duration `yaml:"serial_overall_timeout"`
	SerialPollInterval   time.Duration `yaml:"serial_poll_interval"`

	// ProtocolPreference lists protocols as protocol.Descriptor.Name()
	// strings (e.g. "ISO 15765-4 (CAN 11/500000)") in a preferred order. It is
	// loaded and carried only: elm.AutoConnect always uses its own
	// built-in search order, and nothing in this module reads the field.
	ProtocolPreference []string `yaml:"protocol_preference,omitempty"`

	// ResetTokenTTL bounds how long a Service $04 reset-confirmation
	// token (package obd) remains valid before a caller must restart
	// the two-phase handshake. spec.md §9 only requires the token be
	// single-use and process-local; a TTL is this library's own
	// addition for long-lived sessions that never retry the clear.
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl"`
}

// searchLocations is tried in order by Load when no explicit path is
// given, mirroring deviceid.go's multi-location search for tocalls.yaml.
var searchLocations = []string{
	"goobd2.yaml",
	"config/goobd2.yaml",
	"/etc/goobd2/goobd2.yaml",
}

// Default returns the built-in configuration used when no file is
// found at any search location: the full candidate baud set and AT
// timeouts spec.md §6 documents, an empty protocol preference, and a
// generous reset-token TTL.
func Default() Config {
	return Config{
		CandidateBauds:       []int{38400, 9600, 230400, 115200, 57600, 19200},
		SerialOverallTimeout: 2 * time.Second,
		SerialPollInterval:   2 * time.Second,
		ResetTokenTTL:        5 * time.Minute,
	}
}

// Load reads and unmarshals the YAML document at path, overlaying it on
// Default() (a field absent from the document keeps its default). If
// path is empty, every entry in searchLocations is tried in order; if
// none exist, Default() is returned unmodified rather than treated as
// an error — same "quietly fall back" policy deviceid.go uses for a
// missing tocalls.yaml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, foundPath, err := readFirst(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", foundPath, err)
	}
	if data == nil {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", foundPath, err)
	}
	return cfg, nil
}

// readFirst reads path if given, else the first existing entry in
// searchLocations. Returns (nil, "", nil) if path is empty and nothing
// in searchLocations exists.
func readFirst(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		return data, path, err
	}
	for _, loc := range searchLocations {
		data, err := os.ReadFile(loc)
		if err == nil {
			return data, loc, nil
		}
		if !os.IsNotExist(err) {
			return nil, loc, err
		}
	}
	return nil, "", nil
}
