package hub

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidMessage marks envelopes that fail validation. It is always scoped
// to the offending caller or client and never affects the connection set.
var ErrInvalidMessage = errors.New("invalid message")

// envelopeSchema is the structural contract for inbound client messages.
// Type membership in the closed enum is checked separately so the error can
// name the offending type.
const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"data": {"type": "object"}
	}
}`

var compiledEnvelopeSchema = gojsonschema.NewStringLoader(envelopeSchema)

// ValidateInbound checks a raw client payload against the envelope schema.
// The parsed envelope is NOT checked for enum membership here; dispatchers
// answer unknown types with an error envelope while keeping the connection
// open.
func ValidateInbound(raw []byte) error {
	result, err := gojsonschema.Validate(compiledEnvelopeSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, result.Errors()[0].String())
	}
	return nil
}

// validateOutbound rejects envelopes whose type is outside the closed enum.
func validateOutbound(env Envelope) error {
	if !env.Type.Known() {
		return fmt.Errorf("%w: unknown message type %q (protocol v%s)", ErrInvalidMessage, env.Type, ProtocolVersion)
	}
	return nil
}
