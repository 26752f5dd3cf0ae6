// Package config loads the projector configuration file: controller
// address, transport selection, and the five mask slots.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencalib/cbpctl/axis"
	"github.com/opencalib/cbpctl/wire"
)

// MaskSlot configures one of the five user mask slots.
type MaskSlot struct {
	Name     string  `yaml:"name"`
	Rotation float64 `yaml:"rotation"`
}

// Config mirrors the supervisory configuration schema. Masks 1-5 are
// configurable; slot 9 is reserved for Unknown and not represented here.
type Config struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// Serial selects the legacy direct serial link instead of TCP.
	Serial string `yaml:"serial,omitempty"`
	Baud   int    `yaml:"baud,omitempty"`

	// Terminator is "crlf" (default) or "cr" for legacy firmware.
	Terminator string `yaml:"terminator,omitempty"`

	Mask1 MaskSlot `yaml:"mask1"`
	Mask2 MaskSlot `yaml:"mask2"`
	Mask3 MaskSlot `yaml:"mask3"`
	Mask4 MaskSlot `yaml:"mask4"`
	Mask5 MaskSlot `yaml:"mask5"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Address: "127.0.0.1",
		Port:    9999,
		Mask1:   MaskSlot{Name: "Mask 1", Rotation: 30},
		Mask2:   MaskSlot{Name: "Mask 2", Rotation: 60},
		Mask3:   MaskSlot{Name: "Mask 3", Rotation: 90},
		Mask4:   MaskSlot{Name: "Mask 4", Rotation: 120},
		Mask5:   MaskSlot{Name: "Mask 5", Rotation: 150},
	}
}

// Load reads and validates a yaml configuration file. Missing fields
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field consistency.
func (c *Config) Validate() error {
	if c.Serial == "" {
		if c.Address == "" {
			return fmt.Errorf("address is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("port %d out of range", c.Port)
		}
	}
	switch c.Terminator {
	case "", "crlf", "cr":
	default:
		return fmt.Errorf("terminator %q not one of crlf, cr", c.Terminator)
	}
	for i, m := range c.slots() {
		if m.Rotation < 0 || m.Rotation > 360 {
			return fmt.Errorf("mask%d rotation %v not in [0, 360]", i+1, m.Rotation)
		}
	}
	return nil
}

// WireTerminator maps the configured terminator name to its bytes.
func (c *Config) WireTerminator() wire.Terminator {
	if c.Terminator == "cr" {
		return wire.CR
	}
	return wire.CRLF
}

func (c *Config) slots() []MaskSlot {
	return []MaskSlot{c.Mask1, c.Mask2, c.Mask3, c.Mask4, c.Mask5}
}

// MaskTable builds the runtime mask table from the configured slots.
func (c *Config) MaskTable() *axis.MaskTable {
	t := axis.NewMaskTable()
	for i, m := range c.slots() {
		if m.Name == "" {
			continue
		}
		t.Set(i+1, m.Name, m.Rotation)
	}
	return t
}
