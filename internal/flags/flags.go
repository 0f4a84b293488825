// File: internal/flags/flags.go

// Package flags builds browser launch arguments and driver capabilities from
// typed flag definitions. Each browser family contributes its own definition
// table; the Set tracks which flags are currently applied and renders them
// into a deterministic command line.
package flags

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Kind classifies how a definition is rendered.
type Kind int

const (
	// KindSwitch is a bare on/off argument ("--mute-audio").
	KindSwitch Kind = iota
	// KindValue is an argument carrying a value; Template contains a
	// "{value}" placeholder, or the value is emitted as a separate token
	// when Separate is set.
	KindValue
	// KindCapability is not a command line argument at all; it lands in the
	// capability map handed to the driver (e.g. the debugger address).
	KindCapability
	// KindPositional is appended after every other argument (the start page).
	KindPositional
)

// Definition describes a single flag a browser family understands.
type Definition struct {
	Name     string
	Template string
	Kind     Kind
	// Separate renders KindValue as two tokens: Template then the value.
	Separate bool
	// Validate rejects unusable values before they are recorded. Nil means
	// any non-empty string is accepted.
	Validate func(string) error
}

var (
	// ErrUnknownFlag is returned when a flag name has no definition.
	ErrUnknownFlag = errors.New("unknown flag")
	// ErrInvalidFlagValue is returned when a value fails validation.
	ErrInvalidFlagValue = errors.New("invalid flag value")
)

// NonEmpty rejects empty or blank values.
func NonEmpty(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("value must not be empty")
	}
	return nil
}

// Port accepts decimal TCP port numbers.
func Port(v string) error {
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fmt.Errorf("not a number: %q", v)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	return nil
}

// Set is a registry of flag definitions plus the values currently applied.
type Set struct {
	defs   map[string]Definition
	values map[string]string
}

// NewSet builds a Set from definition tables. Later tables override earlier
// definitions with the same name.
func NewSet(tables ...[]Definition) *Set {
	s := &Set{
		defs:   make(map[string]Definition),
		values: make(map[string]string),
	}
	for _, table := range tables {
		for _, d := range table {
			s.defs[d.Name] = d
		}
	}
	return s
}

// Define adds or replaces a single definition.
func (s *Set) Define(d Definition) {
	s.defs[d.Name] = d
}

// Apply validates and records a value for a named flag. For KindSwitch the
// value is ignored and the switch is turned on.
func (s *Set) Apply(name, value string) error {
	d, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}

	if d.Kind != KindSwitch {
		validate := d.Validate
		if validate == nil {
			validate = NonEmpty
		}
		if err := validate(value); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrInvalidFlagValue, name, err)
		}
	}

	s.values[name] = value
	return nil
}

// Switch turns a KindSwitch flag on.
func (s *Set) Switch(name string) error {
	return s.Apply(name, "")
}

// Remove drops a previously applied flag. Removing an unapplied flag is a
// no-op.
func (s *Set) Remove(name string) {
	delete(s.values, name)
}

// Clear drops every applied flag, keeping the definitions.
func (s *Set) Clear() {
	s.values = make(map[string]string)
}

// Has reports whether a flag is currently applied.
func (s *Set) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Value returns the applied value for a flag.
func (s *Set) Value(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Args renders the applied flags into a command line argument list. Output
// is deterministic: flags are ordered by name, positionals come last.
func (s *Set) Args() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)

	var args, positional []string
	for _, name := range names {
		d := s.defs[name]
		value := s.values[name]

		switch d.Kind {
		case KindSwitch:
			args = append(args, d.Template)
		case KindValue:
			if d.Separate {
				args = append(args, d.Template, value)
			} else {
				args = append(args, strings.ReplaceAll(d.Template, "{value}", value))
			}
		case KindPositional:
			positional = append(positional, value)
		case KindCapability:
			// rendered by Capabilities, not Args
		}
	}

	return append(args, positional...)
}

// Capabilities renders the applied KindCapability flags. The Template is the
// capability key; "{value}" placeholders are substituted as in Args.
func (s *Set) Capabilities() map[string]string {
	caps := make(map[string]string)
	for name, value := range s.values {
		d := s.defs[name]
		if d.Kind != KindCapability {
			continue
		}
		caps[d.Template] = value
	}
	return caps
}

// PickProxy selects the proxy address to use for one launch: the single
// entry when there is one, a uniformly random entry otherwise.
func PickProxy(proxies []string) string {
	switch len(proxies) {
	case 0:
		return ""
	case 1:
		return proxies[0]
	default:
		return proxies[rand.Intn(len(proxies))]
	}
}
