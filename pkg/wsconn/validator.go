package wsconn

import (
	"encoding/json"
	"fmt"
)

// ValidationConfig configures the optional pre-parse guard a dispatcher
// runs ahead of Codec.Parse (supplemental feature, SPEC_FULL §3).
// Grounded on pkg/websocket/security/validator.go; left disabled
// (Options.Validation == nil) by default so it never changes the
// parse/retry/drop behavior spec.md §4.4 describes.
type ValidationConfig struct {
	MaxMessageSize int
	AllowedTypes   map[string]bool
	TypeField      string // defaults to "type"
}

// MessageValidator checks a raw frame against a ValidationConfig before
// it reaches the codec.
type MessageValidator interface {
	ValidateMessage(raw string) error
}

type messageValidator struct {
	config ValidationConfig
}

// NewMessageValidator builds a MessageValidator from config.
func NewMessageValidator(config ValidationConfig) MessageValidator {
	return &messageValidator{config: config}
}

func (mv *messageValidator) ValidateMessage(raw string) error {
	if mv.config.MaxMessageSize > 0 && len(raw) > mv.config.MaxMessageSize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(raw), mv.config.MaxMessageSize)
	}

	if len(mv.config.AllowedTypes) == 0 {
		return nil
	}

	var base map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &base); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	typeField := mv.config.TypeField
	if typeField == "" {
		typeField = "type"
	}

	msgType, ok := base[typeField].(string)
	if !ok {
		return fmt.Errorf("missing or invalid message %s field", typeField)
	}

	if !mv.config.AllowedTypes[msgType] {
		return fmt.Errorf("invalid message type: %s", msgType)
	}

	return nil
}
