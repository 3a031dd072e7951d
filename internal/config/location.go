// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocationKind says how a config file was requested on the command line.
type LocationKind int

const (
	// LocationAuto uses the default file in the config directory.
	LocationAuto LocationKind = iota
	// LocationPath is an explicit file path.
	LocationPath
	// LocationNamed is a bare name resolved to <config dir>/<name>.toml.
	LocationNamed
)

// Location is a parsed -c/--config value.
type Location struct {
	Kind  LocationKind
	Value string
}

// ParseLocation interprets a --config value: empty means auto, a value with
// a dot (or a path separator) is a path, anything else is a profile name.
func ParseLocation(s string) Location {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Location{Kind: LocationAuto}
	case strings.ContainsAny(s, "./"+string(filepath.Separator)):
		return Location{Kind: LocationPath, Value: s}
	default:
		return Location{Kind: LocationNamed, Value: s}
	}
}

// UnmarshalFlag lets go-flags parse a Location directly.
func (l *Location) UnmarshalFlag(value string) error {
	*l = ParseLocation(value)
	return nil
}

// String returns the flag form of the location.
func (l Location) String() string {
	return l.Value
}

// Resolve returns the file path for the location. For LocationAuto a
// DefaultFileName in the working directory still wins, but deprecated is
// set so the caller can warn about it.
func (l Location) Resolve() (path string, deprecated bool, err error) {
	switch l.Kind {
	case LocationPath:
		return l.Value, false, nil
	case LocationNamed:
		dir, err := Dir()
		if err != nil {
			return "", false, err
		}
		name := l.Value
		if filepath.Ext(name) == "" {
			name += ".toml"
		}
		return filepath.Join(dir, name), false, nil
	case LocationAuto:
		if _, err := os.Stat(DefaultFileName); err == nil {
			return DefaultFileName, true, nil
		}
		dir, err := Dir()
		if err != nil {
			return "", false, err
		}
		return filepath.Join(dir, DefaultFileName), false, nil
	default:
		return "", false, fmt.Errorf("unknown config location kind %d", l.Kind)
	}
}

// ExampleTOML is offered to first-time users with no config file.
const ExampleTOML = `api_key = "<YOUR SECRET API KEY>"
model = "gpt-3.5-turbo"
max_tokens = 2048
temperature = 0.8
`
