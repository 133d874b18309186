package config

import "encoding/json"

// Schema returns a JSON Schema document describing BroodConfig, used by the
// `brood schema` CLI command. No schema-generation library appears anywhere
// in the retrieved pack, so this is hand-rolled (see DESIGN.md).
func Schema() map[string]any {
	starter := map[string]any{
		"type":     "object",
		"required": []string{"type"},
		"properties": map[string]any{
			"type":           map[string]any{"type": "string", "enum": []string{"once", "restart", "watch", "after"}},
			"delay":          map[string]any{"type": "number", "description": "seconds to wait before restarting; used by type=restart"},
			"paths":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "used by type=watch"},
			"poll":           map[string]any{"type": "boolean", "description": "used by type=watch"},
			"allow_multiple": map[string]any{"type": "boolean", "description": "used by type=watch"},
			"after":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "names this command waits on; used by type=after"},
		},
	}

	command := map[string]any{
		"type":     "object",
		"required": []string{"name", "command", "starter"},
		"properties": map[string]any{
			"name":         map[string]any{"type": "string"},
			"command":      commandOrArgv(),
			"shutdown":     commandOrArgv(),
			"tag":          map[string]any{"type": "string"},
			"prefix":       map[string]any{"type": "string"},
			"prefix_style": map[string]any{"type": "string"},
			"starter":      starter,
			"max_memory_bytes": map[string]any{"type": "integer", "minimum": 0},
			"max_cpu_percent":  map[string]any{"type": "number", "minimum": 0},
		},
	}

	renderer := map[string]any{
		"type":     "object",
		"required": []string{"type"},
		"properties": map[string]any{
			"type":                   map[string]any{"type": "string", "enum": []string{"null", "log", "socket"}},
			"prefix":                 map[string]any{"type": "string"},
			"prefix_style":           map[string]any{"type": "string"},
			"internal_prefix":        map[string]any{"type": "string"},
			"internal_prefix_style":  map[string]any{"type": "string"},
			"socket_path":            map[string]any{"type": "string"},
			"min_verbosity":          map[string]any{"type": "string", "enum": []string{"debug", "info", "warning", "error"}},
		},
	}

	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "BroodConfig",
		"type":    "object",
		"required": []string{"commands"},
		"properties": map[string]any{
			"failure_mode": map[string]any{"type": "string", "enum": []string{"continue", "kill_others"}},
			"commands":     map[string]any{"type": "array", "items": command},
			"renderer":     renderer,
			"prefix":       map[string]any{"type": "string"},
			"prefix_style": map[string]any{"type": "string"},
		},
	}
}

func commandOrArgv() map[string]any {
	return map[string]any{
		"oneOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

// SchemaJSON renders Schema as indented JSON, as printed by `brood schema`.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
