package validation

import (
	"errors"
	"fmt"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var (
	// ErrMalformedJSON is returned when a payload is not parseable JSON.
	ErrMalformedJSON = errors.New("malformed json")

	// ErrUnknownSchema is returned when no schema is registered under a name.
	ErrUnknownSchema = errors.New("unknown schema")
)

// InvalidPayloadError reports the first schema violation in a payload.
type InvalidPayloadError struct {
	// Path is a JSON path such as "$.discord_id"
	Path    string
	Message string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("validation failed at '%s': %s", e.Path, e.Message)
}

// SchemaValidator validates request payloads against named JSON schemas.
// Schemas are compiled on first use and kept in an LRU cache.
type SchemaValidator struct {
	schemas     map[string]string
	schemaCache *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a validator over the given name → schema JSON map.
func NewSchemaValidator(cacheSize int, schemas map[string]string) (*SchemaValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}

	copied := make(map[string]string, len(schemas))
	for name, schema := range schemas {
		copied[name] = schema
	}

	return &SchemaValidator{
		schemas:     copied,
		schemaCache: cache,
	}, nil
}

// Decode parses r as JSON and validates it against the named schema.
//
// Returns ErrMalformedJSON (wrapped) for unparseable input, an
// *InvalidPayloadError for a schema violation, and any other error for a
// broken schema.
func (v *SchemaValidator) Decode(name string, r io.Reader) (any, error) {
	instance, err := jsonschema.UnmarshalJSON(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := v.Validate(name, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// Validate checks an already-decoded instance against the named schema.
func (v *SchemaValidator) Validate(name string, instance any) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}

	if err := schema.Validate(instance); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func (v *SchemaValidator) schema(name string) (*jsonschema.Schema, error) {
	if cached, ok := v.schemaCache.Get(name); ok {
		return cached, nil
	}

	schemaJSON, ok := v.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}

	schema, err := compileSchema(name, schemaJSON)
	if err != nil {
		return nil, err
	}
	v.schemaCache.Add(name, schema)
	return schema, nil
}

// compileSchema compiles a JSON schema string into a schema object
func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	// A fresh compiler per schema keeps resource URLs from colliding.
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	schemaURL := name + ".json"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// formatValidationError converts a jsonschema error into an *InvalidPayloadError.
// Example: "validation failed at '$.discord_id': does not match pattern '^[0-9]{1,20}$'"
func formatValidationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &InvalidPayloadError{Path: "$", Message: err.Error()}
	}

	// Report the deepest cause; the root only says "doesn't validate with ...".
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	path := "$"
	var parts []string
	for _, part := range leaf.InstanceLocation {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	msg := leaf.ErrorKind.LocalizedString(printer)
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return &InvalidPayloadError{Path: path, Message: msg}
}
