//go:build !protogen

package emrsync

import (
	"context"
)

// BranchRecord and TreatmentRecord mirror the EMR master data exposed
// by the emr gRPC service for on-demand pulls.
type BranchRecord struct {
	ExternalID string
	Name       string
	City       string
	IsOpen     bool
}

type TreatmentRecord struct {
	ExternalID string
	Name       string
}

type Provider interface {
	FetchBranches(ctx context.Context) ([]BranchRecord, error)
	FetchTreatments(ctx context.Context) ([]TreatmentRecord, error)
}

func NewProvider(_ string) (Provider, error) {
	return nil, nil
}
