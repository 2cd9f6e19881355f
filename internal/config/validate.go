package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/votryx/votryx/internal/driver"
)

// Limits on the parallel worker count
const (
	MinParallelWorkers = 1
	MaxParallelWorkers = 10
)

// Validate checks the configuration and normalizes the user agent pool.
// A validation failure rejects the run before any session starts.
func (c *RunConfiguration) Validate() error {
	if err := ValidateURL(c.TargetURL); err != nil {
		return fmt.Errorf("target_url: %w", err)
	}

	if !c.Unbounded && c.TargetVotes < 1 {
		return fmt.Errorf("target_votes must be at least 1 (or set unbounded)")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.ParallelWorkers < MinParallelWorkers || c.ParallelWorkers > MaxParallelWorkers {
		return fmt.Errorf("parallel_workers must be between %d and %d", MinParallelWorkers, MaxParallelWorkers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.PauseBetweenVotes < 0 {
		return fmt.Errorf("pause_between_votes cannot be negative")
	}
	if c.MaxErrors < 1 {
		return fmt.Errorf("max_errors must be at least 1")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be greater than 0")
	}
	if c.BackoffCap <= 0 {
		return fmt.Errorf("backoff_cap must be greater than 0")
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff_cap cannot be less than backoff_base")
	}
	if c.StopGrace < 0 {
		return fmt.Errorf("stop_grace cannot be negative")
	}

	if len(c.VoteLocators) == 0 {
		return fmt.Errorf("at least one vote locator is required")
	}
	for i, loc := range c.VoteLocators {
		if strings.TrimSpace(loc.Value) == "" {
			return fmt.Errorf("vote_locators[%d]: value is empty", i)
		}
		switch loc.Strategy {
		case driver.LocatorCSS, driver.LocatorXPath:
		default:
			return fmt.Errorf("vote_locators[%d]: unknown strategy %q", i, loc.Strategy)
		}
	}

	c.UserAgents = NormalizeUserAgents(c.UserAgents)
	return nil
}

// ValidateURL checks that a URL is http(s) with a host
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must contain a valid domain")
	}
	return nil
}

// NormalizeUserAgents trims, drops strings shorter than 10 characters and
// deduplicates case-insensitively, preserving order.
func NormalizeUserAgents(agents []string) []string {
	var cleaned []string
	seen := make(map[string]struct{})
	for _, ua := range agents {
		trimmed := strings.TrimSpace(ua)
		if len(trimmed) < 10 {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
