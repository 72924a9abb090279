package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// CompileSchema compiles a schema descriptor's JSON Schema document.
func CompileSchema(descriptor domain.SchemaDescriptor) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(descriptor.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", descriptor.Name, err)
	}
	return schema, nil
}

// ValidateDocument validates data against the compiled schema and flattens
// violations into one {path, message, code} per failed keyword.
func ValidateDocument(schema *jsonschema.Schema, data []byte) domain.ValidationResult {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return domain.ValidationResult{Valid: true}
	}

	errs := flattenViolations(result.ToList())
	if len(errs) == 0 {
		errs = []domain.ValidationError{{Path: "", Message: "document does not conform to schema", Code: "schema"}}
	}
	return domain.ValidationResult{Valid: false, Errors: errs}
}

// Aggregate keywords restate their children's failures; they are skipped
// unless they are the only signal available.
var aggregateKeywords = map[string]struct{}{
	"properties": {}, "items": {}, "prefixItems": {},
	"allOf": {}, "anyOf": {}, "oneOf": {},
	"$ref": {}, "if": {}, "then": {}, "else": {},
}

var quotedNamePattern = regexp.MustCompile(`['"]([^'"]+)['"]`)

func flattenViolations(list *jsonschema.List) []domain.ValidationError {
	var leaf, all []domain.ValidationError
	walkList(list, &leaf, &all)
	if len(leaf) > 0 {
		return leaf
	}
	return all
}

func walkList(node *jsonschema.List, leaf, all *[]domain.ValidationError) {
	if node == nil {
		return
	}

	if !node.Valid {
		for keyword, message := range node.Errors {
			v := domain.ValidationError{
				Path:    violationPath(node.InstanceLocation, keyword, message),
				Message: message,
				Code:    keyword,
			}
			*all = append(*all, v)
			if _, aggregate := aggregateKeywords[keyword]; !aggregate {
				*leaf = append(*leaf, v)
			}
		}
	}

	for i := range node.Details {
		walkList(&node.Details[i], leaf, all)
	}
}

// violationPath reports required-property violations at the missing property
// rather than at the parent object, which is what retry feedback and callers
// actually need.
func violationPath(instanceLocation, keyword, message string) string {
	path := strings.TrimPrefix(instanceLocation, "/")
	path = strings.ReplaceAll(path, "/", ".")

	if keyword == "required" {
		if m := quotedNamePattern.FindStringSubmatch(message); m != nil {
			if path == "" {
				return m[1]
			}
			return path + "." + m[1]
		}
	}
	return path
}
