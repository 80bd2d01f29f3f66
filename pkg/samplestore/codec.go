package samplestore

import (
	"encoding/json"
	"fmt"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// EncodeObservation serializes obs with the same field names the API uses,
// so stored values stay readable by older dashboards.
func EncodeObservation(obs types.Observation) ([]byte, error) {
	data, err := json.Marshal(obs)
	if err != nil {
		return nil, fmt.Errorf("encode observation: %w", err)
	}
	return data, nil
}

// DecodeObservation deserializes a value written by EncodeObservation.
func DecodeObservation(data []byte) (types.Observation, error) {
	var obs types.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return types.Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	return obs, nil
}
