// Package config loads the optional config.yml that tunes sync and forecasting.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-yaml/yaml"
)

// SkipAccount marks a provider account that must never be mirrored.
const SkipAccount = "0"

type forecastConfig struct {
	AccountTypes []string `yaml:"account_types"`
}

type MasterConfig struct {
	Accounts   map[string]string `yaml:"accounts"`
	Categories []CategoryRule    `yaml:"categories"`
	Forecast   forecastConfig    `yaml:"forecast"`
}

// CategoryRule assigns Category to transactions whose description contains Match.
type CategoryRule struct {
	Match    string `yaml:"match"`
	Category string `yaml:"category"`
	Skip     bool   `yaml:"skip,omitempty"`
}

// InitConfig reads file. A missing file yields an empty configuration.
func InitConfig(file string) (*MasterConfig, error) {
	c := &MasterConfig{}
	yamlFile, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	if err := yaml.Unmarshal(yamlFile, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	return c, c.validate()
}

func (c *MasterConfig) validate() error {
	for i, r := range c.Categories {
		if r.Match == "" {
			return fmt.Errorf("categories[%d]: match must be set", i)
		}
		if r.Category == "" && !r.Skip {
			return fmt.Errorf("categories[%d]: category or skip must be set", i)
		}
	}
	return nil
}

// Skipped reports whether the provider account is configured as "0".
func (c *MasterConfig) Skipped(accountID string) bool {
	if c == nil {
		return false
	}
	return c.Accounts[accountID] == SkipAccount
}

// IncludesAccountType reports whether balances of accounts of type t feed the forecast.
func (c *MasterConfig) IncludesAccountType(t string) bool {
	if c == nil || len(c.Forecast.AccountTypes) == 0 {
		return true
	}
	for _, at := range c.Forecast.AccountTypes {
		if strings.EqualFold(at, t) {
			return true
		}
	}
	return false
}

// MatchCategory returns the first rule whose Match is contained in description.
func (c *MasterConfig) MatchCategory(description string) (CategoryRule, bool) {
	if c == nil {
		return CategoryRule{}, false
	}
	for _, r := range c.Categories {
		if strings.Contains(strings.ToUpper(description), strings.ToUpper(r.Match)) {
			return r, true
		}
	}
	return CategoryRule{}, false
}

// CategoryNames lists every category configured in rules, without duplicates.
func (c *MasterConfig) CategoryNames() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, r := range c.Categories {
		if r.Category == "" || seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		names = append(names, r.Category)
	}
	return names
}
