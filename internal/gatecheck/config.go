// Package gatecheck loads the optional YAML threshold-override file,
// resolves the layered threshold set for a given label/path context,
// runs the current-vs-baseline comparison, and renders the Markdown
// pass/fail summary a CI step prints.
package gatecheck

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Hard-coded defaults: the first layer in the threshold resolution
// chain, overridable by the config file, then by a matching rule, then
// by explicit caller overrides.
const (
	DefaultS1Threshold      = 100.0
	DefaultOverallThreshold = 80.0
	DefaultTopN             = 5
)

// Thresholds is one named layer of threshold values. A zero Go value
// (0) is indistinguishable from "not set" at the config-file/rule
// layers, so Config stores pointers internally; Thresholds is the
// resolved, fully-populated form callers see.
type Thresholds struct {
	S1PassRate      float64
	OverallPassRate float64
	TopN            int
}

// rawThresholds is the YAML shape for a thresholds block, where any
// field may be absent (nil) to mean "inherit from the previous layer".
type rawThresholds struct {
	S1PassRate      *float64 `yaml:"s1_pass_rate"`
	OverallPassRate *float64 `yaml:"overall_pass_rate"`
	TopN            *int     `yaml:"top_n"`
}

// Match is a rule's applicability condition. Both Labels and Paths,
// when non-empty, must match (AND); an empty Match never matches.
type Match struct {
	Labels []string `yaml:"labels"`
	Paths  []string `yaml:"paths"`
}

// Rule is one named threshold override, applied when its Match
// condition is satisfied against the caller's labels/paths.
type Rule struct {
	Name       string        `yaml:"name"`
	MatchOn    Match         `yaml:"match"`
	Thresholds rawThresholds `yaml:"thresholds"`
}

// Config is the gate-check configuration file shape:
// {thresholds: {...}, rules: [...], owner_fallback}.
type Config struct {
	Thresholds    rawThresholds `yaml:"thresholds"`
	Rules         []Rule        `yaml:"rules"`
	OwnerFallback string        `yaml:"owner_fallback"`
}

// configFileNames are the names LoadConfigAuto looks for in the
// working directory, in priority order.
var configFileNames = []string{"agentreg-gate.yaml", "agentreg-gate.yml", ".agentreg-gate.yaml"}

// LoadConfig reads and parses a gate-check config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gatecheck: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("gatecheck: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfigAuto looks for a gate-check config file by name in dir and
// loads the first one found. It returns (nil, nil) when none exist;
// absence of a config file is not an error, the hard defaults apply.
func LoadConfigAuto(dir string) (*Config, error) {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(path)
		}
	}
	return nil, nil
}

// Resolve computes the effective Thresholds for a request carrying the
// given labels and changed paths, layering hard defaults → config-file
// defaults → first matching rule → explicit overrides. overrides may
// be nil to accept whatever the lower layers produce; any of its
// fields with a non-zero value wins outright, and a zero field leaves
// the lower layers' value in place.
func (c *Config) Resolve(labels, paths []string, overrides *Thresholds) Thresholds {
	result := Thresholds{
		S1PassRate:      DefaultS1Threshold,
		OverallPassRate: DefaultOverallThreshold,
		TopN:            DefaultTopN,
	}

	if c != nil {
		applyRaw(&result, c.Thresholds)
		for _, rule := range c.Rules {
			if ruleMatches(rule.MatchOn, labels, paths) {
				applyRaw(&result, rule.Thresholds)
				break
			}
		}
	}

	if overrides != nil {
		if overrides.S1PassRate != 0 {
			result.S1PassRate = overrides.S1PassRate
		}
		if overrides.OverallPassRate != 0 {
			result.OverallPassRate = overrides.OverallPassRate
		}
		if overrides.TopN != 0 {
			result.TopN = overrides.TopN
		}
	}

	return result
}

func applyRaw(dst *Thresholds, raw rawThresholds) {
	if raw.S1PassRate != nil {
		dst.S1PassRate = *raw.S1PassRate
	}
	if raw.OverallPassRate != nil {
		dst.OverallPassRate = *raw.OverallPassRate
	}
	if raw.TopN != nil {
		dst.TopN = *raw.TopN
	}
}

// ruleMatches requires every non-empty condition in m to be satisfied.
// An entirely empty Match never matches anything.
func ruleMatches(m Match, labels, paths []string) bool {
	if len(m.Labels) == 0 && len(m.Paths) == 0 {
		return false
	}
	if len(m.Labels) > 0 && !anyContains(m.Labels, labels) {
		return false
	}
	if len(m.Paths) > 0 && !anyGlobMatches(m.Paths, paths) {
		return false
	}
	return true
}

func anyContains(want, have []string) bool {
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}
	for _, w := range want {
		if haveSet[w] {
			return true
		}
	}
	return false
}

func anyGlobMatches(patterns, paths []string) bool {
	for _, pattern := range patterns {
		for _, p := range paths {
			if ok, err := filepath.Match(pattern, p); err == nil && ok {
				return true
			}
		}
	}
	return false
}
