package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"neurosim/internal/model"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1

	EnvelopeKind = "parameter_set"
)

var ErrRecordVersionMismatch = errors.New("record version mismatch")

type RecordEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	CodecVersion  int             `json:"codec_version"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

// EncodeParameterSet writes p as a versioned envelope around its flat map.
func EncodeParameterSet(p model.ParameterSet) ([]byte, error) {
	payload, err := json.Marshal(ToMap(p))
	if err != nil {
		return nil, fmt.Errorf("encode parameter set payload: %w", err)
	}
	return json.Marshal(RecordEnvelope{
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Kind:          EnvelopeKind,
		Payload:       payload,
	})
}

func DecodeParameterSet(data []byte) (model.ParameterSet, error) {
	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.ParameterSet{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.SchemaVersion != SupportedSchemaVersion || env.CodecVersion != SupportedCodecVersion {
		return model.ParameterSet{}, ErrRecordVersionMismatch
	}
	if env.Kind != EnvelopeKind {
		return model.ParameterSet{}, fmt.Errorf("unexpected envelope kind %q", env.Kind)
	}
	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return model.ParameterSet{}, fmt.Errorf("decode parameter set payload: %w", err)
	}
	p, _, err := FromMap(values)
	return p, err
}
