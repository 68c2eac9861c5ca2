// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"fmt"
	"text/template"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// PlatformConfig describes one platform the bridge relays to.
type PlatformConfig struct {
	// Tag is the platform tag, e.g. "QQ". It keys mention decode patterns
	// and message destination routing.
	Tag string `yaml:"tag"`
	// GroupID is the default native group/channel on this platform.
	GroupID int64 `yaml:"group_id"`
	// BotID is the bridge's own native account id on this platform. It is
	// used as the quote sender when the quoted author has no native
	// identity here.
	BotID int64 `yaml:"bot_id"`
}

// Config holds the bridge configuration.
type Config struct {
	// UserStorePath is the durable identity record. Defaults to
	// "./data/bridge_user.json".
	UserStorePath string `yaml:"user_store_path"`
	// DisplaynameTemplate renders canonical display texts from native user
	// info, e.g. "{{.Name}}({{.ID}})".
	DisplaynameTemplate string `yaml:"displayname_template"`
	// SubscriberBuffer is the per-subscriber bus buffer size.
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	LogLevel         string `yaml:"log_level"`

	Platforms []PlatformConfig `yaml:"platforms"`

	displaynameTemplate *template.Template `yaml:"-"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Name string
	ID   string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func (c *Config) PostProcess() error {
	if c.UserStorePath == "" {
		c.UserStorePath = "./data/bridge_user.json"
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	return err
}

// Platform returns the config block for the given platform tag.
func (c *Config) Platform(tag string) (PlatformConfig, bool) {
	for _, pc := range c.Platforms {
		if pc.Tag == tag {
			return pc, true
		}
	}
	return PlatformConfig{}, false
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "user_store_path")
	helper.Copy(up.Str, "displayname_template")
	helper.Copy(up.Int, "subscriber_buffer")
	helper.Copy(up.Str, "log_level")
	helper.Copy(up.List, "platforms")
}

// ConfigUpgrader upgrades on-disk configs to the current example layout.
var ConfigUpgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks:         nil,
	Base:           ExampleConfig,
}

// LoadConfig reads, upgrades, and parses the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, _, err := up.Do(path, true, ConfigUpgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// FormatDisplayname generates a canonical display text from the template
// and params, e.g. "Alice(111)".
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Name
	}
	var buf []byte
	err := c.displaynameTemplate.Execute(
		(*templateBuffer)(&buf),
		params,
	)
	if err != nil {
		return params.Name
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
