package provider

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://licenseiq.local/schemas/"

const extractionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rules"],
  "properties": {
    "documentType": {"type": ["string", "null"]},
    "licenseType": {"type": ["string", "null"]},
    "parties": {
      "type": ["object", "null"],
      "properties": {
        "licensor": {"type": ["string", "null"]},
        "licensee": {"type": ["string", "null"]}
      }
    },
    "effectiveDate": {"type": ["string", "null"]},
    "expirationDate": {"type": ["string", "null"]},
    "currency": {"type": ["string", "null"]},
    "paymentTerms": {"type": ["string", "null"]},
    "reportingRequirements": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["ruleType", "calculation"],
        "properties": {
          "ruleType": {"type": "string", "minLength": 1},
          "ruleName": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "conditions": {"type": ["object", "null"]},
          "calculation": {"type": ["object", "null"]},
          "priority": {"type": ["number", "null"]},
          "confidence": {"type": ["number", "null"]},
          "sourceSpan": {
            "type": ["object", "null"],
            "properties": {
              "section": {"type": ["string", "null"]},
              "text": {"type": ["string", "null"]}
            }
          }
        }
      }
    },
    "extractionMetadata": {"type": ["object", "null"]}
  }
}`

const analysisSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["summary"],
  "properties": {
    "summary": {"type": "string"},
    "keyTerms": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "confidence": {"type": ["number", "null"]},
          "location": {"type": ["string", "null"]}
        }
      }
    },
    "riskAnalysis": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "level": {"type": ["string", "null"]},
          "title": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]}
        }
      }
    },
    "insights": {"type": ["array", "null"], "items": {"type": "object"}},
    "confidence": {"type": ["number", "null"]}
  }
}`

const validationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["isValid"],
  "properties": {
    "isValid": {"type": "boolean"},
    "confidence": {"type": ["number", "null"]},
    "reasoning": {"type": ["string", "null"]},
    "recommendations": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

// Schemas holds the compiled output schemas.
type Schemas struct {
	Extraction *jsonschema.Schema
	Analysis   *jsonschema.Schema
	Validation *jsonschema.Schema
}

// CompileSchemas compiles the built-in output schemas.
func CompileSchemas() (*Schemas, error) {
	var s Schemas
	for _, def := range []struct {
		name string
		src  string
		dst  **jsonschema.Schema
	}{
		{"extraction.json", extractionSchema, &s.Extraction},
		{"analysis.json", analysisSchema, &s.Analysis},
		{"validation.json", validationSchema, &s.Validation},
	} {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := schemaBaseURL + def.name
		if err := c.AddResource(url, strings.NewReader(def.src)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", def.name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", def.name, err)
		}
		*def.dst = compiled
	}
	return &s, nil
}

// MustCompileSchemas panics if the built-in schemas do not compile.
func MustCompileSchemas() *Schemas {
	s, err := CompileSchemas()
	if err != nil {
		panic(err)
	}
	return s
}
