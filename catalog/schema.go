package catalog

// FileSchema is the JSON schema a catalog file must satisfy after YAML decoding.
const FileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tools"],
  "additionalProperties": false,
  "properties": {
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "command", "parser"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9_.-]*$"},
          "name": {"type": "string"},
          "category": {"type": "string"},
          "version": {"type": "string"},
          "description": {"type": "string"},
          "command": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "stdin": {"type": "string"},
          "env": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          },
          "tool_dir_param": {"type": "string"},
          "timeout": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?(ms|s|m|h)$"},
          "parser": {"enum": ["coordinates", "lines", "text", "json"]},
          "params": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "kind"],
              "additionalProperties": false,
              "properties": {
                "name": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
                "kind": {"enum": ["file_in", "file_out", "number", "integer", "text", "choice", "flag"]},
                "label": {"type": "string"},
                "description": {"type": "string"},
                "required": {"type": "boolean"},
                "default": {"type": ["string", "number", "boolean"]},
                "min": {"type": "number"},
                "max": {"type": "number"},
                "extensions": {"type": "array", "items": {"type": "string"}},
                "choices": {"type": "array", "items": {"type": "string"}, "minItems": 1},
                "directory": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`
