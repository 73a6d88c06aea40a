package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal wraps shopspring decimal for yaml fields so money and rate values
// are parsed from the raw scalar text, never through a float.
type Decimal struct {
	decimal.Decimal
	set bool
}

func D(s string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(s), set: true}
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar for decimal, got %v", node.Kind)
	}
	v, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("parse decimal %q: %w", node.Value, err)
	}
	d.Decimal = v
	d.set = true
	return nil
}

func (d Decimal) MarshalYAML() (any, error) {
	return d.Decimal.String(), nil
}

// IsSet reports whether the field was present in the yaml document, so
// defaults can distinguish "absent" from an explicit zero.
func (d Decimal) IsSet() bool {
	return d.set
}
