package parser

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/paiml/ruchy/internal/ast"
)

// dfColumnSchemaJSON describes the legal shape of a df! macro's column
// definitions once projected to JSON: a non-empty list of {name, kind}
// pairs where name is a non-empty identifier-shaped string and kind
// classifies the column's data expression, grounded on the teacher's
// JSON-Schema parameter validation (core/types/validation.go).
const dfColumnSchemaJSON = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["name", "kind"],
    "properties": {
      "name": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
      "kind": {"type": "string", "enum": ["array", "scalar", "range", "other"]}
    },
    "additionalProperties": false
  }
}`

var (
	dfSchemaOnce sync.Once
	dfSchema     *jsonschema.Schema
	dfSchemaErr  error
)

func compiledDfSchema() (*jsonschema.Schema, error) {
	dfSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		const url = "schema://ruchy-df-columns.json"
		if err := compiler.AddResource(url, strings.NewReader(dfColumnSchemaJSON)); err != nil {
			dfSchemaErr = err
			return
		}
		dfSchema, dfSchemaErr = compiler.Compile(url)
	})
	return dfSchema, dfSchemaErr
}

// dfColumnKind classifies a column's data expression for schema purposes.
func dfColumnKind(e *ast.Expr) string {
	switch e.Kind.(type) {
	case ast.ListLit:
		return "array"
	case ast.Range:
		return "range"
	case ast.IntLit, ast.FloatLit, ast.StringLit, ast.BoolLit:
		return "scalar"
	default:
		return "other"
	}
}

// dfColumnName extracts a display name for a column's name expression; only
// bare identifiers and string literals are legal per the schema, so
// anything else surfaces as an empty string and fails validation.
func dfColumnName(e *ast.Expr) string {
	switch k := e.Kind.(type) {
	case ast.Identifier:
		return k.Name
	case ast.StringLit:
		return k.Value
	default:
		return ""
	}
}

// validateDataFrameColumns projects cols to JSON and validates it against
// dfColumnSchemaJSON, returning a human-readable validation error (spec.md
// §4.7 item 12 "DataFrame builder chain", enforced at parse time for the
// `df!` macro form specifically).
func validateDataFrameColumns(cols []ast.DataFrameColumn) error {
	schema, err := compiledDfSchema()
	if err != nil {
		return err
	}
	doc := make([]map[string]any, 0, len(cols))
	for _, c := range cols {
		doc = append(doc, map[string]any{
			"name": dfColumnName(c.Name),
			"kind": dfColumnKind(c.Data),
		})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return err
	}
	return schema.Validate(inst)
}
