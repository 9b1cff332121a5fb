package credential

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bluele/gcache"
	"github.com/xeipuuv/gojsonschema"

	"fides.dev/dpp/hashutil"
)

// SchemaFetcher retrieves schema bytes for a credentialSchema id.
type SchemaFetcher func(ctx context.Context, id string) ([]byte, error)

// SchemaValidator validates credential subjects against JSON schemas.
// Compiled schemas are cached keyed by the content hash of the schema bytes,
// so a changed upstream schema never reuses a stale compilation.
type SchemaValidator struct {
	fetch    SchemaFetcher
	compiled gcache.Cache
}

func NewSchemaValidator(fetch SchemaFetcher) *SchemaValidator {
	return &SchemaValidator{
		fetch:    fetch,
		compiled: gcache.New(64).LRU().Build(),
	}
}

// Validate fetches and compiles the schema, then validates the document.
// Structural violations are returned as messages, not errors; a non-nil
// error means the schema could not be fetched or compiled.
func (v *SchemaValidator) Validate(ctx context.Context, schemaID string, document json.RawMessage) (valid bool, violations []string, err error) {
	raw, err := v.fetch(ctx, schemaID)
	if err != nil {
		return false, nil, fmt.Errorf("credential: fetch schema %q: %w", schemaID, err)
	}

	key := hashutil.DigestHex(raw)
	var schema *gojsonschema.Schema
	if cached, cacheErr := v.compiled.Get(key); cacheErr == nil {
		schema = cached.(*gojsonschema.Schema)
	} else {
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return false, nil, fmt.Errorf("credential: compile schema %q: %w", schemaID, err)
		}
		_ = v.compiled.Set(key, schema)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return false, nil, fmt.Errorf("credential: validate against %q: %w", schemaID, err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}
