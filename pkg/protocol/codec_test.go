package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/types"
)

func validEnvelope() *types.Envelope {
	return &types.Envelope{
		Protocol:  types.ProtocolName,
		Version:   types.ProtocolVersion,
		ProjectID: "proj",
		Type:      types.MsgStatusUpdate,
		TaskID:    "TASK-2026-08-26-001",
		FromAgent: "dev-1",
		SentAt:    time.Now().UTC(),
		Payload:   map[string]any{"progress": "halfway"},
	}
}

func TestDecodeRawJSON(t *testing.T) {
	data, err := json.Marshal(validEnvelope())
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "proj", env.ProjectID)
	assert.Equal(t, types.MsgStatusUpdate, env.Type)
	assert.Equal(t, "halfway", env.Payload["progress"])
}

func TestDecodePrefixCarrier(t *testing.T) {
	encoded, err := Encode(validEnvelope())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, types.ProtocolPrefix))

	env, err := Decode([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, "dev-1", env.FromAgent)
}

func TestDecodeTransportWrap(t *testing.T) {
	inner, err := json.Marshal(validEnvelope())
	require.NoError(t, err)

	t.Run("payload object", func(t *testing.T) {
		outer, err := json.Marshal(map[string]any{
			"channel": "agents",
			"payload": json.RawMessage(inner),
		})
		require.NoError(t, err)

		env, err := Decode(outer)
		require.NoError(t, err)
		assert.Equal(t, "proj", env.ProjectID)
	})

	t.Run("payload string", func(t *testing.T) {
		outer, err := json.Marshal(map[string]any{
			"payload": string(inner),
		})
		require.NoError(t, err)

		env, err := Decode(outer)
		require.NoError(t, err)
		assert.Equal(t, "proj", env.ProjectID)
	})
}

func TestDecodeRejections(t *testing.T) {
	tooBig := append([]byte(`{"pad":"`), make([]byte, types.MaxEnvelopeBytes)...)

	missingTask := validEnvelope()
	missingTask.TaskID = ""
	missingTaskJSON, _ := json.Marshal(missingTask)

	wrongProto := validEnvelope()
	wrongProto.Protocol = "other"
	wrongProtoJSON, _ := json.Marshal(wrongProto)

	wrongVersion := validEnvelope()
	wrongVersion.Version = 99
	wrongVersionJSON, _ := json.Marshal(wrongVersion)

	tests := []struct {
		name   string
		raw    []byte
		reason string
	}{
		{"invalid json", []byte("{nope"), RejectInvalidJSON},
		{"payload too large", tooBig, RejectPayloadTooLarge},
		{"missing taskId", missingTaskJSON, RejectInvalidEnvelope},
		{"wrong protocol", wrongProtoJSON, RejectInvalidEnvelope},
		{"wrong version", wrongVersionJSON, RejectInvalidEnvelope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.reason, de.Reason)
		})
	}
}
