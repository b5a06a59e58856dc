package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// trackSchema describes the shape of one track document. Cross-field rules
// (correct index in range, unique ids, variant fields) are checked in Go after decoding.
const trackSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title", "level", "modules"],
  "properties": {
    "id":          {"$ref": "#/definitions/segment"},
    "title":       {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "level":       {"enum": ["beginner", "intermediate", "advanced"]},
    "modules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "title", "lessons"],
        "properties": {
          "id":      {"$ref": "#/definitions/segment"},
          "title":   {"type": "string", "minLength": 1},
          "lessons": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/lesson"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false,
  "definitions": {
    "segment": {"type": "string", "pattern": "^[a-z0-9]+(-[a-z0-9]+)*$"},
    "lesson": {
      "type": "object",
      "required": ["slug", "title", "duration", "xp_reward", "objectives", "sections", "practices"],
      "properties": {
        "slug":       {"$ref": "#/definitions/segment"},
        "title":      {"type": "string", "minLength": 1},
        "duration":   {"type": "string", "minLength": 1},
        "xp_reward":  {"type": "integer", "minimum": 1},
        "objectives": {"type": "array", "items": {"type": "string"}},
        "sections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type":     {"enum": ["text", "concept", "math", "code", "example"]},
              "title":    {"type": "string"},
              "content":  {"type": "string"},
              "formula":  {"type": "string"},
              "language": {"type": "string"},
              "code":     {"type": "string"},
              "problem":  {"type": "string"},
              "solution": {"type": "string"}
            },
            "additionalProperties": false
          }
        },
        "practices": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "question", "options", "correct"],
            "properties": {
              "id":       {"type": "integer"},
              "question": {"type": "string", "minLength": 1},
              "options":  {"type": "array", "minItems": 2, "items": {"type": "string"}},
              "correct":  {"type": "integer", "minimum": 0}
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    }
  }
}`

var trackSchemaLoader = gojsonschema.NewStringLoader(trackSchema)

// validateTrackDocument checks raw YAML bytes against the track schema.
func validateTrackDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	result, err := gojsonschema.Validate(trackSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid track document: %s", strings.Join(msgs, "; "))
	}
	return nil
}
