// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ppdfit/services/fit/param"
)

// Config describes a composite model in a form loadable from YAML or
// JSON, so fits can be driven from a file instead of code.
//
// Example:
//
//	components:
//	  - type: ring
//	    params:
//	      radius: {value: 2.0, min: 0.5, max: 8.0, free: true}
//	      flux:   {value: 1.2}
//	  - type: gauss
//	    params:
//	      fwhm: {value: 4.0}
type Config struct {
	Components []ComponentConfig `json:"components" yaml:"components"`
}

// ComponentConfig selects a component type and overrides its defaults.
type ComponentConfig struct {
	// Type is one of "ring", "disk", "gauss" or "star".
	Type string `json:"type" yaml:"type"`

	// Params overrides the component's default parameters by name.
	// Unlisted parameters keep their defaults.
	Params map[string]ParamConfig `json:"params" yaml:"params"`
}

// ParamConfig overrides one parameter. Nil fields keep the default.
type ParamConfig struct {
	Value *float64 `json:"value" yaml:"value"`
	Min   *float64 `json:"min" yaml:"min"`
	Max   *float64 `json:"max" yaml:"max"`
	Free  *bool    `json:"free" yaml:"free"`
}

// LoadConfig reads a model description from a YAML or JSON file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read model file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			return cfg, fmt.Errorf("parse model file (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return cfg, nil
}

// defaultParams returns the stock parameter set for a component type.
func defaultParams(kind string) (*param.Set, error) {
	switch kind {
	case "ring":
		return NewRingParams(2.0, 0.5, 1.0)
	case "disk":
		return NewPowerLawDiskParams(1.0, 10.0, 0.5, 0.3)
	case "gauss":
		return NewGaussianParams(4.0, 1.0)
	case "star":
		return NewStarParams(7500, 10, 150)
	default:
		return nil, fmt.Errorf("%w: unknown component type %q", ErrInvalidGeometry, kind)
	}
}

// Build constructs the composite model the configuration describes.
//
// Outputs:
//   - *Composite: The model.
//   - error: Unknown component types, unknown parameter names, or
//     parameter values that violate their bounds.
func (c Config) Build() (*Composite, error) {
	if len(c.Components) == 0 {
		return nil, ErrEmptyComposite
	}
	comps := make([]Component, 0, len(c.Components))
	for i, cc := range c.Components {
		set, err := defaultParams(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i+1, err)
		}
		set, err = overrideParams(set, cc.Params)
		if err != nil {
			return nil, fmt.Errorf("component %d (%s): %w", i+1, cc.Type, err)
		}
		switch cc.Type {
		case "ring":
			comps = append(comps, NewRing(set))
		case "disk":
			comps = append(comps, NewPowerLawDisk(set))
		case "gauss":
			comps = append(comps, NewGaussian(set))
		case "star":
			comps = append(comps, NewStar(set))
		}
	}
	return NewComposite(comps...)
}

// overrideParams rebuilds a parameter set with per-name overrides applied.
func overrideParams(set *param.Set, overrides map[string]ParamConfig) (*param.Set, error) {
	if len(overrides) == 0 {
		return set, nil
	}
	seen := make(map[string]bool, len(overrides))
	params := make([]param.Parameter, set.Len())
	for i := 0; i < set.Len(); i++ {
		p := set.At(i)
		if o, ok := overrides[p.Name]; ok {
			seen[p.Name] = true
			if o.Value != nil {
				p.Value = *o.Value
			}
			if o.Min != nil {
				p.Min = *o.Min
			}
			if o.Max != nil {
				p.Max = *o.Max
			}
			if o.Free != nil {
				p.Free = *o.Free
			}
		}
		params[i] = p
	}
	for name := range overrides {
		if !seen[name] {
			return nil, fmt.Errorf("%w: %s", param.ErrUnknownName, name)
		}
	}
	return param.NewSet(params...)
}
