package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProductControl lists the source systems and mapping files that take part in
// one control run for one product. Mapping files pair with Systems by position.
type ProductControl struct {
	Systems  []string `yaml:"systems" json:"systems"`
	Mappings []string `yaml:"mappings" json:"mappings"`
}

// Controls is the parsed controls file:
//
//	controls:
//	  completeness:
//	    "Fiber 100Mbps":
//	      systems: [siebel, antillia]
//	      mappings: [siebel_mapping.txt, antillia_mapping.txt]
type Controls struct {
	Controls map[string]map[string]ProductControl `yaml:"controls"`
}

// DefaultSystems are used when no controls file is configured or a product
// has no entry.
var DefaultSystems = []string{"siebel", "antillia"}

// LoadControls reads a controls YAML file. An empty path yields an empty set.
func LoadControls(path string) (*Controls, error) {
	if path == "" {
		return &Controls{Controls: map[string]map[string]ProductControl{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read controls file: %w", err)
	}
	return ParseControls(data)
}

// ParseControls parses controls YAML and validates the system names.
func ParseControls(data []byte) (*Controls, error) {
	var c Controls
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse controls file: %w", err)
	}
	if c.Controls == nil {
		c.Controls = map[string]map[string]ProductControl{}
	}

	for controlType, products := range c.Controls {
		for product, pc := range products {
			for i, system := range pc.Systems {
				s := strings.ToLower(strings.TrimSpace(system))
				if s != "siebel" && s != "antillia" {
					return nil, fmt.Errorf("controls.%s.%s: unknown system %q", controlType, product, system)
				}
				pc.Systems[i] = s
			}
			if len(pc.Mappings) > 0 && len(pc.Mappings) != len(pc.Systems) {
				return nil, fmt.Errorf("controls.%s.%s: %d mapping files for %d systems", controlType, product, len(pc.Mappings), len(pc.Systems))
			}
		}
	}
	return &c, nil
}

// ControlTypes returns the configured control types in sorted order.
func (c *Controls) ControlTypes() []string {
	types := make([]string, 0, len(c.Controls))
	for t := range c.Controls {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Products returns the products configured for a control type in sorted order.
func (c *Controls) Products(controlType string) []string {
	products := make([]string, 0, len(c.Controls[controlType]))
	for p := range c.Controls[controlType] {
		products = append(products, p)
	}
	sort.Strings(products)
	return products
}

// HasMappings reports whether any product control names mapping files.
func (c *Controls) HasMappings() bool {
	for _, products := range c.Controls {
		for _, pc := range products {
			if len(pc.Mappings) > 0 {
				return true
			}
		}
	}
	return false
}

// Lookup returns the product control for (controlType, product), falling back
// to DefaultSystems when nothing is configured.
func (c *Controls) Lookup(controlType, product string) ProductControl {
	if products, ok := c.Controls[controlType]; ok {
		if pc, ok := products[product]; ok && len(pc.Systems) > 0 {
			return pc
		}
	}
	return ProductControl{Systems: append([]string(nil), DefaultSystems...)}
}
