package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/validation"
)

// Request schema names.
const (
	schemaProxyToken  = "proxy_token"
	schemaDiscordUser = "discord_user"
)

const maxBodyBytes = 64 << 10

const proxyTokenSchema = `{
	"type": "object",
	"required": ["discord_id", "display_name"],
	"properties": {
		"discord_id": {"type": "string", "pattern": "^[0-9]{1,20}$"},
		"display_name": {"type": "string", "minLength": 1, "maxLength": 100}
	}
}`

const discordUserSchema = `{
	"type": "object",
	"required": ["discord_id", "display_name"],
	"properties": {
		"discord_id": {"type": "string", "pattern": "^[0-9]{1,20}$"},
		"display_name": {"type": "string", "minLength": 1, "maxLength": 100},
		"generate_token": {"type": "boolean"}
	}
}`

// NewPayloadValidator returns a validator loaded with every request schema
// the router accepts.
func NewPayloadValidator() (*validation.SchemaValidator, error) {
	return validation.NewSchemaValidator(8, map[string]string{
		schemaProxyToken:  proxyTokenSchema,
		schemaDiscordUser: discordUserSchema,
	})
}

// decodeRequest checks the content type, validates the body against the
// named schema, and unmarshals it into dst.
func decodeRequest(r *http.Request, v *validation.SchemaValidator, schema string, dst any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedContentType
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return ErrBodyTooLarge
	}

	if _, err := v.Decode(schema, bytes.NewReader(body)); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		// The schema accepted it, so this is a shape the struct can't hold.
		return errors.Join(validation.ErrMalformedJSON, err)
	}
	return nil
}
