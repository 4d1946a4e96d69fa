package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/aof/pkg/types"
)

// Rejection reasons recorded on protocol.message.rejected events.
const (
	RejectInvalidJSON      = "invalid_json"
	RejectInvalidEnvelope  = "invalid_envelope"
	RejectPayloadTooLarge  = "payload_too_large"
	RejectInvalidProject   = "invalid_project_id"
	RejectTaskNotFound     = "task_not_found"
	RejectNestedDelegation = "nested_delegation"
	RejectMissingParent    = "missing_parent"
	RejectTaskIDMismatch   = "taskId_mismatch"
)

// DecodeError carries the rejection reason for a message that failed to
// parse or validate.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a wire message into an envelope. Three carriers are
// accepted: a raw JSON envelope, a transport wrapper whose payload field
// holds the envelope (as an object or a JSON string), and the "AOF/1 "
// string prefix followed by the envelope JSON.
func Decode(raw []byte) (*types.Envelope, error) {
	if len(raw) > types.MaxEnvelopeBytes {
		return nil, &DecodeError{Reason: RejectPayloadTooLarge,
			Err: fmt.Errorf("%d bytes exceeds limit %d", len(raw), types.MaxEnvelopeBytes)}
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, types.ProtocolPrefix) {
		trimmed = strings.TrimPrefix(trimmed, types.ProtocolPrefix)
	}

	// Transport wrap: no protocol marker at the top level, but a payload
	// that itself carries the envelope, either inline or as a JSON string.
	// A string payload makes the direct envelope unmarshal fail on the
	// payload field type, so that error is held until the wrapper form
	// has been tried.
	var env types.Envelope
	envErr := json.Unmarshal([]byte(trimmed), &env)
	if envErr != nil || env.Protocol == "" {
		var wrap struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrap); err == nil && len(wrap.Payload) > 0 {
			inner := wrap.Payload
			var asString string
			if err := json.Unmarshal(inner, &asString); err == nil {
				inner = json.RawMessage(asString)
			}
			var wrapped types.Envelope
			if err := json.Unmarshal(inner, &wrapped); err == nil && wrapped.Protocol != "" {
				env = wrapped
				envErr = nil
			}
		}
	}
	if envErr != nil {
		return nil, &DecodeError{Reason: RejectInvalidJSON, Err: envErr}
	}

	if err := validateEnvelope(&env); err != nil {
		return nil, &DecodeError{Reason: RejectInvalidEnvelope, Err: err}
	}
	return &env, nil
}

func validateEnvelope(env *types.Envelope) error {
	switch {
	case env.Protocol != types.ProtocolName:
		return fmt.Errorf("unknown protocol %q", env.Protocol)
	case env.Version != types.ProtocolVersion:
		return fmt.Errorf("unsupported version %d", env.Version)
	case env.ProjectID == "":
		return errors.New("missing projectId")
	case env.Type == "":
		return errors.New("missing type")
	case env.TaskID == "":
		return errors.New("missing taskId")
	case env.FromAgent == "":
		return errors.New("missing fromAgent")
	default:
		return nil
	}
}

// Encode serializes an envelope with the string-carrier prefix, the form
// agents paste into transport channels.
func Encode(env *types.Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(data) > types.MaxEnvelopeBytes {
		return "", &DecodeError{Reason: RejectPayloadTooLarge,
			Err: fmt.Errorf("%d bytes exceeds limit %d", len(data), types.MaxEnvelopeBytes)}
	}
	return types.ProtocolPrefix + string(data), nil
}
