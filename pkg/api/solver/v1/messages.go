// Package solverv1 is the wire contract between resweep and resweepd.
//
// Messages travel as google.protobuf.Struct values so the service runs on the
// stock gRPC proto codec without generated code. Each request and response
// is a plain Go struct that is converted at the edge with Encode and Decode.
package solverv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// CreateConfigurationRequest registers a named eigenmode configuration.
type CreateConfigurationRequest struct {
	Name          string               `json:"name"`
	Configuration solver.Configuration `json:"configuration"`
}

// CreateConfigurationResponse carries the handle of the new configuration.
type CreateConfigurationResponse struct {
	Handle string `json:"handle"`
}

// RunRequest solves a configuration.
type RunRequest struct {
	Handle    string                  `json:"handle"`
	Resources solver.ComputeResources `json:"resources"`
}

// RunResponse summarises a completed run.
type RunResponse struct {
	Passes    int  `json:"passes"`
	Converged bool `json:"converged"`
}

// ListResultQuantitiesRequest asks for the quantity names of one category.
type ListResultQuantitiesRequest struct {
	Handle   string          `json:"handle"`
	Category solver.Category `json:"category"`
}

// ListResultQuantitiesResponse lists quantity names ordered by mode.
type ListResultQuantitiesResponse struct {
	Quantities []solver.QuantityName `json:"quantities"`
}

// QuantityValueRequest asks for the final-pass value of one quantity.
type QuantityValueRequest struct {
	Handle   string              `json:"handle"`
	Quantity solver.QuantityName `json:"quantity"`
}

// QuantityValueResponse carries a quantity value.
type QuantityValueResponse struct {
	Value float64 `json:"value"`
}

// ReleaseRequest drops a configuration and its results.
type ReleaseRequest struct {
	Handle string `json:"handle"`
}

// ReleaseResponse is empty.
type ReleaseResponse struct{}

// StatusRequest is empty.
type StatusRequest struct{}

// StatusResponse describes the daemon.
type StatusResponse struct {
	Running        bool   `json:"running"`
	PID            int    `json:"pid"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	MemoryBytes    int64  `json:"memory_bytes"`
	Backend        string `json:"backend"`
	Catalog        string `json:"catalog,omitempty"`
	CatalogModes   int    `json:"catalog_modes"`
	CatalogLoaded  int64  `json:"catalog_loaded_unix,omitempty"`
	Configurations int    `json:"configurations"`
	Stored         int    `json:"stored"`
	Runs           int64  `json:"runs"`
}

// ClearRequest drops every configuration the daemon holds.
type ClearRequest struct{}

// ClearResponse reports how many configurations were dropped.
type ClearResponse struct {
	Released int `json:"released"`
}

// ShutdownRequest asks the daemon to stop.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown.
type ShutdownResponse struct {
	Success bool `json:"success"`
}

// Encode converts a message to a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return st, nil
}

// Decode fills v from a Struct. A nil Struct decodes as an empty message.
func Decode(st *structpb.Struct, v any) error {
	if st == nil {
		st = &structpb.Struct{}
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
