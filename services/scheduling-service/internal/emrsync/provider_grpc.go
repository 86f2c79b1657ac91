//go:build protogen

package emrsync

import (
	"context"
	"time"

	"github.com/nasir-uddin/theragrid/libs/grpcx"
	emrv1 "github.com/nasir-uddin/theragrid/protos/gen/emr/v1"
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

type grpcProvider struct {
	client emrv1.EMRServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: emrv1.NewEMRServiceClient(conn)}, nil
}

func (p *grpcProvider) FetchBranches(ctx context.Context) ([]BranchRecord, error) {
	resp, err := p.client.ListBranches(ctx, &emrv1.ListBranchesRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]BranchRecord, 0, len(resp.GetBranches()))
	for _, b := range resp.GetBranches() {
		if b.GetExternalId() == "" {
			continue
		}
		out = append(out, BranchRecord{
			ExternalID: b.GetExternalId(),
			Name:       b.GetName(),
			City:       b.GetCity(),
			IsOpen:     b.GetIsOpen(),
		})
	}
	return out, nil
}

func (p *grpcProvider) FetchTreatments(ctx context.Context) ([]TreatmentRecord, error) {
	resp, err := p.client.ListTreatments(ctx, &emrv1.ListTreatmentsRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]TreatmentRecord, 0, len(resp.GetTreatments()))
	for _, t := range resp.GetTreatments() {
		if t.GetExternalId() == "" {
			continue
		}
		out = append(out, TreatmentRecord{
			ExternalID: t.GetExternalId(),
			Name:       t.GetName(),
		})
	}
	return out, nil
}
