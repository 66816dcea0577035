package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"neurosim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeConfig(c model.ConfigRecord) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeConfig(data []byte) (model.ConfigRecord, error) {
	var config model.ConfigRecord
	if err := decodeJSON(data, &config); err != nil {
		return model.ConfigRecord{}, err
	}
	if err := checkVersion(config.VersionedRecord); err != nil {
		return model.ConfigRecord{}, err
	}
	normalizeNumbers(config.Values)
	return config, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := decodeJSON(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	normalizeNumbers(run.Values)
	return run, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// normalizeNumbers turns integer literals into int64 and the rest into
// float64, so seeds above 2^53 survive a store round trip.
func normalizeNumbers(values map[string]any) {
	for k, v := range values {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			values[k] = i
			continue
		}
		if f, err := n.Float64(); err == nil {
			values[k] = f
		}
	}
}

// Stamp fills the current schema and codec versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// MeasureRun sets SizeBytes to the encoded size of the run's bundle.
func MeasureRun(r *model.RunRecord) error {
	if r.Bundle == nil {
		r.SizeBytes = 0
		return nil
	}
	data, err := json.Marshal(r.Bundle)
	if err != nil {
		return err
	}
	r.SizeBytes = int64(len(data))
	return nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func sortConfigs(configs []model.ConfigRecord) {
	sort.SliceStable(configs, func(i, j int) bool {
		if !configs[i].CreatedAt.Equal(configs[j].CreatedAt) {
			return configs[i].CreatedAt.Before(configs[j].CreatedAt)
		}
		return configs[i].ID < configs[j].ID
	})
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func runMetadata(r model.RunRecord) model.RunRecord {
	r.Values = nil
	r.Bundle = nil
	return r
}
