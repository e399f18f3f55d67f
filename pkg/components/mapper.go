/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package components

import (
	"math"
)

// AccountingType defines whether a component is charged against a hard
// limit or metered usage.
type AccountingType string

const (
	// AccountingTypeLimit components are capped, e.g. storage quota.
	AccountingTypeLimit AccountingType = "limit"

	// AccountingTypeUsage components are metered, e.g. CPU minutes.
	AccountingTypeUsage AccountingType = "usage"
)

// Target remaps a marketplace component onto a backend component with a
// unit conversion, e.g. nodeHours onto per-partition CPU minutes.
type Target struct {
	// Name is the backend side component name.
	Name string `json:"name"`

	// Factor is the multiplier from marketplace units to backend units.
	Factor int64 `json:"factor"`
}

// Component is a single charged dimension declared by an offering.
type Component struct {
	// Name is the marketplace component type.
	Name string `json:"name"`

	// AccountingType selects limit or usage accounting.
	AccountingType AccountingType `json:"accounting_type"`

	// UnitFactor is the multiplier from marketplace units to backend
	// units when no explicit targets are declared.  Zero means one.
	UnitFactor int64 `json:"unit_factor,omitempty"`

	// Label is the human readable name.
	Label string `json:"label,omitempty"`

	// MeasuredUnit is the human readable unit, e.g. "core-hours".
	MeasuredUnit string `json:"measured_unit,omitempty"`

	// Targets optionally remap this component onto one or more backend
	// components, each with its own factor.  When empty the mapping is
	// the identity scaled by UnitFactor.
	Targets []Target `json:"targets,omitempty"`
}

// unitFactor normalizes the zero value to the multiplicative identity.
func (c *Component) unitFactor() int64 {
	if c.UnitFactor == 0 {
		return 1
	}

	return c.UnitFactor
}

// Mapper converts limits and usage between marketplace and backend units.
// It is stateless and safe for concurrent use; iteration order over the
// component set cannot affect results as each component contributes only
// to its own keys.
type Mapper struct {
	components []Component
}

// NewMapper returns a mapper over the offering's component declarations.
func NewMapper(components []Component) *Mapper {
	return &Mapper{
		components: components,
	}
}

// Components returns the component declarations the mapper was built from.
func (m *Mapper) Components() []Component {
	return m.components
}

// ConvertLimitsToBackend maps marketplace limits onto backend limits.
// Passthrough components multiply by the unit factor, remapped components
// expand into one value per target.  Components absent from the input are
// absent from the output.
func (m *Mapper) ConvertLimitsToBackend(limits map[string]int64) map[string]int64 {
	out := map[string]int64{}

	for i := range m.components {
		component := &m.components[i]

		value, ok := limits[component.Name]
		if !ok {
			continue
		}

		if len(component.Targets) == 0 {
			out[component.Name] = value * component.unitFactor()
			continue
		}

		for _, target := range component.Targets {
			out[target.Name] += value * target.Factor
		}
	}

	return out
}

// ConvertLimitsToControl maps backend limits back onto marketplace
// limits, the inverse of ConvertLimitsToBackend.  Passthrough components
// divide by the unit factor; remapped components sum their targets and
// divide by the summed factors.  Divisions truncate toward zero.
func (m *Mapper) ConvertLimitsToControl(limits map[string]int64) map[string]int64 {
	out := map[string]int64{}

	for i := range m.components {
		component := &m.components[i]

		if len(component.Targets) == 0 {
			value, ok := limits[component.Name]
			if !ok {
				continue
			}

			out[component.Name] = value / component.unitFactor()

			continue
		}

		var sum int64

		var factors int64

		var seen bool

		for _, target := range component.Targets {
			factors += target.Factor

			value, ok := limits[target.Name]
			if !ok {
				continue
			}

			seen = true
			sum += value
		}

		if !seen || factors == 0 {
			continue
		}

		out[component.Name] = sum / factors
	}

	return out
}

// ConvertUsageToControl maps backend usage onto marketplace usage.
// Passthrough components divide by the unit factor with truncation toward
// zero, remapped components sum their targets, divide by the summed
// factors and round to two decimal places.
func (m *Mapper) ConvertUsageToControl(usage map[string]float64) map[string]float64 {
	out := map[string]float64{}

	for i := range m.components {
		component := &m.components[i]

		if len(component.Targets) == 0 {
			value, ok := usage[component.Name]
			if !ok {
				continue
			}

			out[component.Name] = math.Trunc(value / float64(component.unitFactor()))

			continue
		}

		var sum float64

		var factors int64

		var seen bool

		for _, target := range component.Targets {
			factors += target.Factor

			value, ok := usage[target.Name]
			if !ok {
				continue
			}

			seen = true
			sum += value
		}

		if !seen || factors == 0 {
			continue
		}

		out[component.Name] = round2(sum / float64(factors))
	}

	return out
}

// round2 rounds to two decimal places, the resolution the marketplace
// stores usage at.
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
