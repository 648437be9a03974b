// Package config provides YAML configuration loading for the SFP Collector.
//
// It reads two directory trees (driven by environment variables) and produces
// a LoadedConfig value that is used by the rest of the application.
//
//	INPUT_SFP_DEVICE_DEFINITIONS_DIRECTORY_PATH → Devices map
//	INPUT_SFP_DEFAULTS_DIRECTORY_PATH           → DeviceDefaults
package config

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default EEPROM table columns. Most switches running SwOS-style firmware
// expose the two SFF-8472 pages as per-port OctetString instances under
// these columns; devices with a different MIB override them in YAML.
const (
	DefaultIdentityOID    = "1.3.6.1.4.1.14988.1.1.19.1.1.10"
	DefaultDiagnosticsOID = "1.3.6.1.4.1.14988.1.1.19.1.1.11"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Paths holds the directory locations for every configuration tree.
type Paths struct {
	Devices  string // INPUT_SFP_DEVICE_DEFINITIONS_DIRECTORY_PATH
	Defaults string // INPUT_SFP_DEFAULTS_DIRECTORY_PATH
}

// PathsFromEnv reads each path from its environment variable, falling back to
// the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Devices:  envOr("INPUT_SFP_DEVICE_DEFINITIONS_DIRECTORY_PATH", "/etc/sfp_collector/devices"),
		Defaults: envOr("INPUT_SFP_DEFAULTS_DIRECTORY_PATH", "/etc/sfp_collector/defaults"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// LoadedConfig
// ─────────────────────────────────────────────────────────────────────────────

// LoadedConfig is the fully parsed representation of all configuration trees.
type LoadedConfig struct {
	// Devices maps hostname → resolved DeviceConfig (defaults merged in).
	Devices map[string]DeviceConfig

	// DeviceDefault is the merged global device default.
	DeviceDefault DeviceDefaults
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads all configuration directories specified by paths and returns a
// fully resolved LoadedConfig. Errors from individual files are accumulated
// and returned together so that operators see all problems at once.
//
// If a directory does not exist, that section is skipped silently (the
// corresponding map will be empty / nil). This allows partial deployments.
func Load(paths Paths, logger *slog.Logger) (*LoadedConfig, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var errs []string

	defaults, err := loadDeviceDefaults(paths.Defaults, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}

	devices, err := loadDevices(paths.Devices, defaults, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	return &LoadedConfig{
		Devices:       devices,
		DeviceDefault: defaults,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Device defaults
// ─────────────────────────────────────────────────────────────────────────────

type rawDefaults struct {
	Default rawDeviceEntry `yaml:"default"`
}

func loadDeviceDefaults(dir string, logger *slog.Logger) (DeviceDefaults, error) {
	var zero DeviceDefaults
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, nil
		}
		return zero, fmt.Errorf("list defaults dir %q: %w", dir, err)
	}

	var merged DeviceDefaults
	for _, path := range files {
		var raw rawDefaults
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed defaults file", "file", path, "error", err.Error())
			continue
		}
		merged = mergeDefaults(merged, raw.Default)
		logger.Debug("config: loaded device defaults", "file", path)
	}
	return merged, nil
}

// mergeDefaults fills zero fields in dst with values from src.
func mergeDefaults(dst DeviceDefaults, src rawDeviceEntry) DeviceDefaults {
	if dst.Port == 0 && src.Port != 0 {
		dst.Port = src.Port
	}
	if dst.PollInterval == 0 && src.PollInterval != 0 {
		dst.PollInterval = src.PollInterval
	}
	if dst.Timeout == 0 && src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if dst.Retries == 0 && src.Retries != 0 {
		dst.Retries = src.Retries
	}
	if dst.Version == "" && src.Version != "" {
		dst.Version = src.Version
	}
	if len(dst.Communities) == 0 && len(src.Communities) > 0 {
		dst.Communities = src.Communities
	}
	if len(dst.SFPPorts) == 0 && len(src.SFPPorts) > 0 {
		dst.SFPPorts = src.SFPPorts
	}
	if dst.IdentityOID == "" && src.IdentityOID != "" {
		dst.IdentityOID = src.IdentityOID
	}
	if dst.DiagnosticsOID == "" && src.DiagnosticsOID != "" {
		dst.DiagnosticsOID = src.DiagnosticsOID
	}
	if dst.MaxConcurrentPolls == 0 && src.MaxConcurrentPolls != 0 {
		dst.MaxConcurrentPolls = src.MaxConcurrentPolls
	}
	return dst
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices
// ─────────────────────────────────────────────────────────────────────────────

func loadDevices(dir string, defaults DeviceDefaults, logger *slog.Logger) (map[string]DeviceConfig, error) {
	result := make(map[string]DeviceConfig)
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("list devices dir %q: %w", dir, err)
	}

	for _, path := range files {
		var raw map[string]rawDeviceEntry
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed device file", "file", path, "error", err.Error())
			continue
		}
		for hostname, entry := range raw {
			result[hostname] = resolveDevice(entry, defaults)
		}
		logger.Debug("config: loaded device file", "file", path, "count", len(raw))
	}
	return result, nil
}

// resolveDevice merges a raw device entry with defaults, producing a
// fully-resolved DeviceConfig.
func resolveDevice(e rawDeviceEntry, d DeviceDefaults) DeviceConfig {
	port := e.Port
	if port == 0 {
		port = d.Port
	}
	if port == 0 {
		port = 161
	}

	interval := e.PollInterval
	if interval == 0 {
		interval = d.PollInterval
	}
	if interval == 0 {
		interval = 60
	}

	timeout := e.Timeout
	if timeout == 0 {
		timeout = d.Timeout
	}
	if timeout == 0 {
		timeout = 3000
	}

	retries := e.Retries
	if retries == 0 {
		retries = d.Retries
	}
	if retries == 0 {
		retries = 2
	}

	version := e.Version
	if version == "" {
		version = d.Version
	}
	if version == "" {
		version = "2c"
	}

	communities := e.Communities
	if len(communities) == 0 {
		communities = d.Communities
	}

	ports := e.SFPPorts
	if len(ports) == 0 {
		ports = d.SFPPorts
	}

	identityOID := e.IdentityOID
	if identityOID == "" {
		identityOID = d.IdentityOID
	}
	if identityOID == "" {
		identityOID = DefaultIdentityOID
	}

	diagOID := e.DiagnosticsOID
	if diagOID == "" {
		diagOID = d.DiagnosticsOID
	}
	if diagOID == "" {
		diagOID = DefaultDiagnosticsOID
	}

	maxPolls := e.MaxConcurrentPolls
	if maxPolls == 0 {
		maxPolls = d.MaxConcurrentPolls
	}
	if maxPolls == 0 {
		maxPolls = 4
	}

	return DeviceConfig{
		IP:                 e.IP,
		Port:               port,
		PollInterval:       interval,
		Timeout:            timeout,
		Retries:            retries,
		ExponentialTimeout: e.ExponentialTimeout,
		Version:            version,
		Communities:        communities,
		V3Credentials:      e.V3Credentials,
		Identity:           e.Identity,
		Model:              e.Model,
		SFPPorts:           ports,
		IdentityOID:        normaliseOID(identityOID),
		DiagnosticsOID:     normaliseOID(diagOID),
		MaxConcurrentPolls: maxPolls,
	}
}

// normaliseOID strips a leading dot so OIDs are in canonical form.
func normaliseOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient — extra keys are fine
	return dec.Decode(out)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
