package services

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// DepthProfile describes one scan-depth variant offered to the dashboard and
// forwarded to the workflow as the scan_depth input.
type DepthProfile struct {
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description"`
	TimeoutMinutes int    `yaml:"timeout_minutes" json:"timeout_minutes"`
	Default        bool   `yaml:"default" json:"default"`
}

type DepthProfiles struct {
	profiles map[string]DepthProfile
	fallback string
}

// LoadDepthProfiles parses the embedded profile file. It fails loudly on a
// malformed file since that is a build artifact, not runtime input.
func LoadDepthProfiles() (*DepthProfiles, error) {
	var raw struct {
		Profiles []DepthProfile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(profilesYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse depth profiles: %w", err)
	}
	if len(raw.Profiles) == 0 {
		return nil, fmt.Errorf("depth profile file defines no profiles")
	}

	dp := &DepthProfiles{profiles: make(map[string]DepthProfile, len(raw.Profiles))}
	for _, p := range raw.Profiles {
		dp.profiles[p.Name] = p
		if p.Default {
			dp.fallback = p.Name
		}
	}
	if dp.fallback == "" {
		dp.fallback = raw.Profiles[0].Name
	}
	return dp, nil
}

// Resolve returns the profile name to use for a requested depth. An empty
// request resolves to the default profile; an unknown one is rejected.
func (d *DepthProfiles) Resolve(requested string) (string, error) {
	if requested == "" {
		return d.fallback, nil
	}
	if _, ok := d.profiles[requested]; !ok {
		return "", fmt.Errorf("unknown scan depth %q", requested)
	}
	return requested, nil
}

// List returns all profiles ordered by timeout, shortest first.
func (d *DepthProfiles) List() []DepthProfile {
	out := make([]DepthProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeoutMinutes < out[j].TimeoutMinutes })
	return out
}
