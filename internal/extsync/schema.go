package extsync

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Feed schemas. Extra properties are tolerated; crawler-user-agents entries
// carry instances, url and addition_date next to pattern.
var feedSchemas = map[Format]string{
	FormatJSONMap: `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": {"type": "string"}
	}`,
	FormatJSONList: `{
		"type": "array",
		"minItems": 1,
		"items": {
			"type": "object",
			"required": ["pattern"],
			"properties": {
				"pattern": {"type": "string"},
				"name": {"type": "string"}
			}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[Format]*jsonschema.Schema
	compileErr  error
)

func compileFeedSchemas() (map[Format]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[Format]*jsonschema.Schema, len(feedSchemas))
		for format, raw := range feedSchemas {
			var doc any
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				compileErr = fmt.Errorf("feed schema %s: %w", format, err)
				return
			}
			url := string(format) + ".json"
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("feed schema %s: %w", format, err)
				return
			}
			sch, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("feed schema %s: %w", format, err)
				return
			}
			out[format] = sch
		}
		compiled = out
	})
	return compiled, compileErr
}

// validateFeed checks a JSON payload against the schema of its format.
// Formats without a schema pass.
func validateFeed(format Format, body []byte) error {
	schemas, err := compileFeedSchemas()
	if err != nil {
		return err
	}
	sch, ok := schemas[format]
	if !ok {
		return nil
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}
