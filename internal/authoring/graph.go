// Package authoring models the graphs produced by a host visual-programming
// environment: units connected by control wires and data wires.
//
// Authoring graphs are inputs to the export compiler. They can be written
// in YAML or CUE; both decode into the same Graph.
package authoring

import (
	"fmt"

	"go.uber.org/multierr"
)

// Graph is an authoring graph.
type Graph struct {
	Name      string        `yaml:"name" json:"name"`
	Units     []Unit        `yaml:"units" json:"units"`
	Control   []Wire        `yaml:"control,omitempty" json:"control,omitempty"`
	Data      []Wire        `yaml:"data,omitempty" json:"data,omitempty"`
	Variables []Variable    `yaml:"variables,omitempty" json:"variables,omitempty"`
	Events    []CustomEvent `yaml:"events,omitempty" json:"events,omitempty"`
}

// Unit is one authoring block.
//
// Owner and Member identify the target of the generic member kinds
// (GetMember, SetMember, InterpolateMember, InvokeMember). ControlOut lists
// control output pins in host order where that order matters, as with
// SwitchOnInteger.
type Unit struct {
	ID         string         `yaml:"id" json:"id"`
	Kind       string         `yaml:"kind" json:"kind"`
	Owner      string         `yaml:"owner,omitempty" json:"owner,omitempty"`
	Member     string         `yaml:"member,omitempty" json:"member,omitempty"`
	ControlOut []string       `yaml:"controlOut,omitempty" json:"controlOut,omitempty"`
	Literals   map[string]any `yaml:"literals,omitempty" json:"literals,omitempty"`
	Config     map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Pin addresses one pin of one unit.
type Pin struct {
	Unit string `yaml:"unit" json:"unit"`
	Pin  string `yaml:"pin" json:"pin"`
}

func (p Pin) String() string {
	return p.Unit + "." + p.Pin
}

// Wire connects an output pin to an input pin.
type Wire struct {
	From Pin `yaml:"from" json:"from"`
	To   Pin `yaml:"to" json:"to"`
}

// Variable is a graph-scoped variable declaration.
type Variable struct {
	ID      string `yaml:"id" json:"id"`
	Type    string `yaml:"type" json:"type"`
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// CustomEvent is a custom event declaration with typed parameters.
type CustomEvent struct {
	ID     string       `yaml:"id" json:"id"`
	Params []EventParam `yaml:"params,omitempty" json:"params,omitempty"`
}

// EventParam is one custom event parameter.
type EventParam struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Unit returns the unit with id.
func (g *Graph) Unit(id string) (*Unit, bool) {
	for i := range g.Units {
		if g.Units[i].ID == id {
			return &g.Units[i], true
		}
	}
	return nil, false
}

// Validate checks that unit ids are unique and non-empty, every unit has a
// kind, and every wire endpoint names an existing unit.
// All problems are reported together.
func (g *Graph) Validate() error {
	var errs error
	ids := make(map[string]bool, len(g.Units))
	for i, u := range g.Units {
		switch {
		case u.ID == "":
			errs = multierr.Append(errs, fmt.Errorf("units[%d]: id is required", i))
		case ids[u.ID]:
			errs = multierr.Append(errs, fmt.Errorf("units[%d]: duplicate id %q", i, u.ID))
		}
		if u.Kind == "" {
			errs = multierr.Append(errs, fmt.Errorf("units[%d]: kind is required", i))
		}
		ids[u.ID] = true
	}

	check := func(section string, wires []Wire) {
		for i, w := range wires {
			if !ids[w.From.Unit] {
				errs = multierr.Append(errs, fmt.Errorf("%s[%d]: unknown unit %q", section, i, w.From.Unit))
			}
			if !ids[w.To.Unit] {
				errs = multierr.Append(errs, fmt.Errorf("%s[%d]: unknown unit %q", section, i, w.To.Unit))
			}
		}
	}
	check("control", g.Control)
	check("data", g.Data)

	seenVar := map[string]bool{}
	for i, v := range g.Variables {
		if v.ID == "" || seenVar[v.ID] {
			errs = multierr.Append(errs, fmt.Errorf("variables[%d]: missing or duplicate id %q", i, v.ID))
		}
		seenVar[v.ID] = true
	}
	seenEvent := map[string]bool{}
	for i, e := range g.Events {
		if e.ID == "" || seenEvent[e.ID] {
			errs = multierr.Append(errs, fmt.Errorf("events[%d]: missing or duplicate id %q", i, e.ID))
		}
		seenEvent[e.ID] = true
	}
	return errs
}
