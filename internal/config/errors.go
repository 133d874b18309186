package config

import "fmt"

// UnknownFormatError is returned by Load when a config path's extension
// doesn't match any supported format (spec.md §7).
type UnknownFormatError struct {
	Path string
	Ext  string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("config: unrecognized format %q for %s (want .json, .toml, .yaml or .yml)", e.Ext, e.Path)
}
