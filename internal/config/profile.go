package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/votryx/votryx/internal/driver"
)

// TargetProfile is a reusable YAML overlay describing one voting target:
// its URL, the ordered locator list for the vote button and an optional
// user agent pool.
type TargetProfile struct {
	Name         string           `yaml:"name"`
	TargetURL    string           `yaml:"target_url"`
	VoteLocators []driver.Locator `yaml:"vote_locators"`
	UserAgents   []string         `yaml:"user_agents"`
}

// LoadProfile reads a target profile from a YAML file
func LoadProfile(path string) (*TargetProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p TargetProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if p.TargetURL == "" && len(p.VoteLocators) == 0 {
		return nil, fmt.Errorf("profile %s declares neither target_url nor vote_locators", path)
	}
	return &p, nil
}

// ApplyProfile overlays the profile's non-empty fields onto the configuration
func (c *RunConfiguration) ApplyProfile(p *TargetProfile) {
	if p.TargetURL != "" {
		c.TargetURL = p.TargetURL
	}
	if len(p.VoteLocators) > 0 {
		c.VoteLocators = p.VoteLocators
	}
	if len(p.UserAgents) > 0 {
		c.UserAgents = NormalizeUserAgents(p.UserAgents)
	}
}
