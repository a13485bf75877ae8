package toolkit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Registry owns the set of tool definitions and validates instance
// configurations before any tool runs. It is populated once at startup and
// read-only afterwards; it performs no network or disk I/O.
type Registry struct {
	definitions map[string]Definition
	factories   map[string]Factory
	schemas     map[string]*gojsonschema.Schema
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		definitions: make(map[string]Definition),
		factories:   make(map[string]Factory),
		schemas:     make(map[string]*gojsonschema.Schema),
		logger:      logger,
	}
}

// Register adds a tool definition with its factory. Registration is explicit
// and happens during process initialization; there is no filesystem or
// reflection based discovery.
func (r *Registry) Register(def Definition, factory Factory) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}
	if factory == nil {
		return fmt.Errorf("invalid tool definition: factory is required")
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}

	r.definitions[def.Name] = def
	r.factories[def.Name] = factory
	r.schemas[def.Name] = schema

	r.logger.Info().
		Str("tool", def.Name).
		Str("placeholder_kind", def.PlaceholderKind).
		Msg("Tool registered")

	return nil
}

// ResolvedTool is a tool instance ready to execute: the definition, a fresh
// tool value and the instance config with declared defaults applied.
type ResolvedTool struct {
	Definition Definition
	Tool       Tool
	Config     map[string]interface{}
}

// Resolve looks up the instance's definition, applies declared defaults and
// validates the config against the tool's schema. Every violated field is
// reported, not just the first, so configuration errors are actionable before
// any tool runs.
func (r *Registry) Resolve(inst InstanceConfig) (*ResolvedTool, error) {
	r.mu.RLock()
	def, exists := r.definitions[inst.ToolName]
	factory := r.factories[inst.ToolName]
	schema := r.schemas[inst.ToolName]
	r.mu.RUnlock()

	if !exists {
		return nil, &UnknownToolError{Name: inst.ToolName}
	}

	config := applyDefaults(def, inst.Config)

	if violations := validateConfig(schema, def, config); len(violations) > 0 {
		return nil, &InvalidToolConfigError{Tool: inst.ToolName, Violations: violations}
	}

	return &ResolvedTool{
		Definition: def,
		Tool:       factory(),
		Config:     config,
	}, nil
}

// ListAvailable returns all registered definitions sorted by name. Consumed
// by the UI to populate tool pickers.
func (r *Registry) ListAvailable() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// Exists reports whether a tool name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.definitions[name]
	return ok
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.definitions)
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty for %s", def.Name)
	}
	if def.PlaceholderKind == "" {
		return fmt.Errorf("placeholder kind cannot be empty for %s", def.Name)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, field := range def.ConfigFields {
		if field.Name == "" {
			return fmt.Errorf("config field name cannot be empty")
		}
		if !validTypes[field.Type] {
			return fmt.Errorf("invalid config field type %s for %s", field.Type, field.Name)
		}
	}

	return nil
}

// compileSchema generates a JSON Schema from the declarative field list.
func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(def.ConfigFields))
	required := []string{}

	for _, field := range def.ConfigFields {
		fieldSchema := map[string]interface{}{
			"type": field.Type,
		}
		if field.Description != "" {
			fieldSchema["description"] = field.Description
		}
		if field.Default != nil {
			fieldSchema["default"] = field.Default
		}

		properties[field.Name] = fieldSchema

		if field.Required {
			required = append(required, field.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// applyDefaults fills declared defaults for fields the instance omitted. The
// instance config itself is never mutated.
func applyDefaults(def Definition, config map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(config))
	for k, v := range config {
		merged[k] = v
	}

	for _, field := range def.ConfigFields {
		if field.Default == nil {
			continue
		}
		if _, ok := merged[field.Name]; !ok {
			merged[field.Name] = field.Default
		}
	}

	return merged
}

func validateConfig(schema *gojsonschema.Schema, def Definition, config map[string]interface{}) []FieldViolation {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return []FieldViolation{{Field: "(config)", Reason: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]FieldViolation, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		field := resultErr.Field()
		// Required-field errors attach to the root; pull the property name
		// out of the error details instead.
		if field == "(root)" {
			if prop, ok := resultErr.Details()["property"].(string); ok {
				field = prop
			}
		}
		violations = append(violations, FieldViolation{
			Field:  field,
			Reason: resultErr.Description(),
		})
	}

	return violations
}
