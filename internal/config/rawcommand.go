package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts either a JSON string or a JSON array of strings.
func (r *RawCommand) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*r = RawCommand{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("config: command must be a string or array of strings: %w", err)
		}
		*r = RawCommand{asString: s}
		return nil
	}

	var argv []string
	if err := json.Unmarshal(trimmed, &argv); err != nil {
		return fmt.Errorf("config: command must be a string or array of strings: %w", err)
	}
	*r = RawCommand{asArgv: argv, isArgv: true}
	return nil
}

func (r RawCommand) MarshalJSON() ([]byte, error) {
	if r.isArgv {
		return json.Marshal(r.asArgv)
	}
	return json.Marshal(r.asString)
}

// UnmarshalYAML accepts the same two shapes via a generic `any` unmarshal,
// matching the way gopkg.in/yaml.v3 decodes scalar-or-sequence nodes.
func (r *RawCommand) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*r = RawCommand{asString: s}
		return nil
	}

	var argv []string
	if err := unmarshal(&argv); err != nil {
		return fmt.Errorf("config: command must be a string or list of strings: %w", err)
	}
	*r = RawCommand{asArgv: argv, isArgv: true}
	return nil
}

// UnmarshalTOML lets go-toml/v2 hand us either a string or an array; the
// library calls this with the already-decoded Go value for the key.
func (r *RawCommand) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		*r = RawCommand{asString: v}
		return nil
	case []any:
		argv := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("config: command array must contain only strings")
			}
			argv = append(argv, s)
		}
		*r = RawCommand{asArgv: argv, isArgv: true}
		return nil
	default:
		return fmt.Errorf("config: command must be a string or array of strings, got %T", value)
	}
}
