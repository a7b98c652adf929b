package limits

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConversionRule maps a source selector to one or more target MIME types.
//
// A rule with no targets, or whose only target is its own source, exempts
// matching files from a more general rule. A size threshold restricts an
// exemption to files no larger than the threshold and a conversion to files
// at least as large as it.
type ConversionRule struct {
	From          string
	To            []string
	SizeThreshold int64
	HasThreshold  bool
}

// Convert returns a conversion rule.
func Convert(from string, to ...string) ConversionRule {
	return ConversionRule{From: from, To: to}
}

// Exempt returns a rule that keeps matching files as they are.
func Exempt(from string) ConversionRule {
	return ConversionRule{From: from}
}

// WithThreshold returns a copy of r gated by a file-size threshold in bytes.
func (r ConversionRule) WithThreshold(size int64) ConversionRule {
	r.SizeThreshold = size
	r.HasThreshold = true
	return r
}

// exemptionShaped reports whether the rule is written as an exemption,
// independent of any particular file.
func (r ConversionRule) exemptionShaped() bool {
	return len(r.To) == 0 || (len(r.To) == 1 && r.To[0] == r.From)
}

// IsExemption reports whether applying r to a file of mimeType leaves it as is.
func (r ConversionRule) IsExemption(mimeType string) bool {
	return r.exemptionShaped() || (len(r.To) == 1 && r.To[0] == mimeType)
}

// AppliesToSize reports whether the rule's size gate admits a file of size bytes.
func (r ConversionRule) AppliesToSize(size int64) bool {
	if !r.HasThreshold {
		return true
	}
	if r.exemptionShaped() {
		return size <= r.SizeThreshold
	}
	return size >= r.SizeThreshold
}

// UnmarshalYAML decodes the tuple form [from, to..., threshold?], where a
// trailing integer is the size threshold.
func (r *ConversionRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode || len(value.Content) == 0 {
		return fmt.Errorf("line %d: conversion rule must be [from, to..., threshold?]", value.Line)
	}
	var rule ConversionRule
	for i, n := range value.Content {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: conversion rule entries must be scalars", n.Line)
		}
		if n.ShortTag() == "!!int" {
			if i == 0 || i != len(value.Content)-1 {
				return fmt.Errorf("line %d: size threshold must be the last entry", n.Line)
			}
			size, err := strconv.ParseInt(n.Value, 0, 64)
			if err != nil {
				return fmt.Errorf("line %d: %w", n.Line, err)
			}
			rule = rule.WithThreshold(size)
			continue
		}
		if i == 0 {
			rule.From = n.Value
		} else {
			rule.To = append(rule.To, n.Value)
		}
	}
	*r = rule
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r ConversionRule) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.From})
	for _, to := range r.To {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: to})
	}
	if r.HasThreshold {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(r.SizeThreshold, 10)})
	}
	return n, nil
}
