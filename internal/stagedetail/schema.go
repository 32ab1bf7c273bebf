package stagedetail

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ditatrack/internal/progress"
)

const conversionProps = `
    "total":        {"type": "integer", "minimum": 0},
    "success":      {"type": ["integer", "boolean"]},
    "failed":       {"type": "integer", "minimum": 0},
    "success_rate": {"type": "number", "minimum": 0}`

// Schemas accept extra fields; they pin down only what the decoder reads.
var stageSchemas = [progress.StageCount]string{
	`{
  "type": "object",
  "required": ["markdown_length"],
  "properties": {
    "file_type":       {"type": ["string", "null"]},
    "markdown_length": {"type": "integer", "minimum": 0},
    "markdown":        {"type": "string"},
    "statistics":      {"type": ["object", "null"]}
  }
}`,
	`{
  "type": "object",
  "required": ["total_chunks", "chunks"],
  "properties": {
    "total_chunks": {"type": "integer", "minimum": 0},
    "has_more":     {"type": "boolean"},
    "statistics":   {"type": ["object", "null"]},
    "chunks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "id":    {"type": ["string", "integer"]},
          "title": {"type": "string"},
          "level": {"type": "integer"},
          "classification": {
            "type": "object",
            "properties": {
              "type":       {"type": "string"},
              "confidence": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`,
	`{
  "type": "object",
  "required": ["total", "failed"],
  "properties": {` + conversionProps + `
  }
}`,
	`{
  "type": "object",
  "required": ["total", "failed", "avg_quality_score"],
  "properties": {` + conversionProps + `,
    "avg_quality_score": {"type": "number", "minimum": 0},
    "summary":           {"type": ["object", "null"]}
  }
}`,
}

var (
	compileOnce sync.Once
	compiled    [progress.StageCount]*jsonschema.Schema
	compileErr  error
)

func schemaFor(idx progress.StageIndex) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for i, src := range stageSchemas {
			name := fmt.Sprintf("%s.json", progress.StageIndex(i+1).Layer())
			if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		for i := range stageSchemas {
			name := fmt.Sprintf("%s.json", progress.StageIndex(i+1).Layer())
			s, err := compiler.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[i] = s
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	if !idx.Valid() {
		return nil, fmt.Errorf("invalid stage %d", idx)
	}
	return compiled[idx-1], nil
}
