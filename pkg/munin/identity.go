// Package munin decodes the Munin RRD naming scheme
// <group>/<node>-<service>-<field>-<type>.rrd, see http://munin-monitoring.org/wiki/MuninFileNames
package munin

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidFileIdentity is returned when a path does not follow the naming scheme
var ErrInvalidFileIdentity = errors.New("invalid munin file identity")

// DSType is the data source type encoded in the last filename token
type DSType string

const (
	Absolute DSType = "absolute"
	Counter  DSType = "counter"
	Derive   DSType = "derive"
	Gauge    DSType = "gauge"
)

// ParseDSType maps a one-letter filename code to its DSType
func ParseDSType(code string) (DSType, error) {
	switch code {
	case "a":
		return Absolute, nil
	case "c":
		return Counter, nil
	case "d":
		return Derive, nil
	case "g":
		return Gauge, nil
	default:
		return "", fmt.Errorf("%w: unknown data source type code %q", ErrInvalidFileIdentity, code)
	}
}

// Code returns the one-letter filename code, or "" for an unknown type
func (t DSType) Code() string {
	switch t {
	case Absolute:
		return "a"
	case Counter:
		return "c"
	case Derive:
		return "d"
	case Gauge:
		return "g"
	default:
		return ""
	}
}

// FileIdentity is what the path of a Munin RRD says about its series
type FileIdentity struct {
	Group   string `json:"group"`
	Node    string `json:"node"`
	Service string `json:"service"`
	Field   string `json:"field"`
	DSType  DSType `json:"ds_type"`
}

// ParseFilename decodes <group-dir>/<node>-<service>-<field>-<type>.<ext>.
// The group is the base name of the containing directory.
func ParseFilename(path string) (FileIdentity, error) {
	dir, file := filepath.Split(path)
	base := strings.TrimSuffix(file, filepath.Ext(file))

	tokens := strings.Split(base, "-")
	if len(tokens) != 4 {
		return FileIdentity{}, fmt.Errorf("%w: %q has %d '-' separated tokens, want 4", ErrInvalidFileIdentity, file, len(tokens))
	}

	dsType, err := ParseDSType(tokens[3])
	if err != nil {
		return FileIdentity{}, fmt.Errorf("%s: %w", file, err)
	}

	group := ""
	if dir != "" {
		group = filepath.Base(dir)
	}

	return FileIdentity{
		Group:   group,
		Node:    tokens[0],
		Service: tokens[1],
		Field:   tokens[2],
		DSType:  dsType,
	}, nil
}

// Measurement is the dot-joined group.node.service.field
func (id FileIdentity) Measurement() string {
	return strings.Join([]string{id.Group, id.Node, id.Service, id.Field}, ".")
}

// Filename rebuilds the relative path the identity was parsed from
func (id FileIdentity) Filename(ext string) string {
	name := strings.Join([]string{id.Node, id.Service, id.Field, id.DSType.Code()}, "-") + ext
	if id.Group == "" {
		return name
	}
	return filepath.Join(id.Group, name)
}
