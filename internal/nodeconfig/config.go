// Package nodeconfig resolves a node's configuration from flags,
// environment variables, and an optional YAML file, in that precedence
// order (SPEC_FULL.md §6). It validates the invariants of spec.md §3:
// write_quorum in [1,|peers|], 0 <= min_delay <= max_delay.
package nodeconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/isparth/kvnode/internal/types"
)

// Config is the fully resolved, validated node configuration.
type Config struct {
	Role             types.Role
	ListenAddr       string
	Peers            []string
	WriteQuorum      int
	MinDelay         time.Duration
	MaxDelay         time.Duration
	ReplicateTimeout time.Duration
	LogLevel         string
}

// fileConfig is the shape of the optional YAML config file.
type fileConfig struct {
	NodeType           string   `yaml:"node_type"`
	WriteQuorum        int      `yaml:"write_quorum"`
	MinDelayMs         float64  `yaml:"min_delay_ms"`
	MaxDelayMs         float64  `yaml:"max_delay_ms"`
	Followers          []string `yaml:"followers"`
	Port               int      `yaml:"port"`
	ReplicateTimeoutMs int      `yaml:"replicate_timeout_ms"`
	LogLevel           string   `yaml:"log_level"`
}

// Flags holds the raw command-line flag values; zero values mean "not
// set", so environment variables and the config file can still apply.
type Flags struct {
	NodeType           string
	Port               int
	WriteQuorum        int
	MinDelayMs         float64
	MaxDelayMs         float64
	Followers          string
	ConfigFile         string
	ReplicateTimeoutMs int
	LogLevel           string
}

// Resolve builds a Config from flags, falling back to environment
// variables, then an optional YAML file, then built-in defaults.
func Resolve(f Flags) (Config, error) {
	fc, err := loadFileConfig(firstNonEmpty(f.ConfigFile, os.Getenv("CONFIG_FILE")))
	if err != nil {
		return Config{}, err
	}

	nodeType := firstNonEmpty(f.NodeType, os.Getenv("NODE_TYPE"), fc.NodeType, "leader")
	role, ok := types.ParseRole(nodeType)
	if !ok {
		return Config{}, fmt.Errorf("invalid NODE_TYPE %q: must be leader or follower", nodeType)
	}

	port := firstNonZeroInt(f.Port, envInt("PORT", 0), fc.Port, 5000)

	followersRaw := firstNonEmpty(f.Followers, os.Getenv("FOLLOWERS"))
	var peers []string
	if followersRaw != "" {
		peers = splitAndTrim(followersRaw)
	} else {
		peers = fc.Followers
	}

	writeQuorum := firstNonZeroInt(f.WriteQuorum, envInt("WRITE_QUORUM", 0), fc.WriteQuorum, 0)
	if writeQuorum == 0 && role == types.RoleLeader {
		writeQuorum = len(peers) // default: full sync if unspecified
	}

	minDelayMs := firstNonZeroFloat(f.MinDelayMs, envFloat("MIN_DELAY_MS", envFloatSeconds("MIN_DELAY")), fc.MinDelayMs, 0)
	maxDelayMs := firstNonZeroFloat(f.MaxDelayMs, envFloat("MAX_DELAY_MS", envFloatSeconds("MAX_DELAY")), fc.MaxDelayMs, 0)

	replicateTimeoutMs := firstNonZeroInt(f.ReplicateTimeoutMs, envInt("REPLICATE_TIMEOUT_MS", 0), fc.ReplicateTimeoutMs, 2000)

	logLevel := firstNonEmpty(f.LogLevel, os.Getenv("LOG_LEVEL"), fc.LogLevel, "info")

	cfg := Config{
		Role:             role,
		ListenAddr:       fmt.Sprintf(":%d", port),
		Peers:            peers,
		WriteQuorum:      writeQuorum,
		MinDelay:         time.Duration(minDelayMs * float64(time.Millisecond)),
		MaxDelay:         time.Duration(maxDelayMs * float64(time.Millisecond)),
		ReplicateTimeout: time.Duration(replicateTimeoutMs) * time.Millisecond,
		LogLevel:         logLevel,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Role == types.RoleLeader {
		if len(c.Peers) > 0 {
			if c.WriteQuorum < 1 || c.WriteQuorum > len(c.Peers) {
				return fmt.Errorf("write_quorum must be in [1,%d], got %d", len(c.Peers), c.WriteQuorum)
			}
		} else if c.WriteQuorum != 0 {
			return fmt.Errorf("write_quorum must be 0 when there are no peers, got %d", c.WriteQuorum)
		}
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min_delay_ms must be >= 0, got %v", c.MinDelay)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max_delay_ms (%v) must be >= min_delay_ms (%v)", c.MaxDelay, c.MinDelay)
	}
	return nil
}

func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroInt(vs ...int) int {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroFloat(vs ...float64) float64 {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envFloatSeconds reads MIN_DELAY/MAX_DELAY as seconds (spec.md §6's
// literal float-seconds env vars) and converts to milliseconds.
func envFloatSeconds(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f * 1000
}
