package emrsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

type BranchWriter interface {
	UpsertByExternalID(ctx context.Context, b model.Branch) (string, error)
}

type TreatmentWriter interface {
	UpsertByExternalID(ctx context.Context, t model.Treatment) (string, error)
}

// Syncer lands EMR master data pushed over Kafka. Branches arrive
// without opening hours, so new ones get the defaults below; hours
// edited locally survive later syncs.
type Syncer struct {
	branches   BranchWriter
	treatments TreatmentWriter
	logger     *slog.Logger
}

func NewSyncer(branches BranchWriter, treatments TreatmentWriter, logger *slog.Logger) *Syncer {
	return &Syncer{branches: branches, treatments: treatments, logger: logger}
}

type branchSyncedEvent struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	IsOpen     *bool  `json:"is_open"`
}

type treatmentSyncedEvent struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

func (s *Syncer) HandleBranchSynced(ctx context.Context, msg kafka.Message) error {
	var ev branchSyncedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode branch synced event: %w", err)
	}
	if ev.ExternalID == "" || ev.Name == "" {
		return fmt.Errorf("branch synced event missing external_id or name")
	}

	isOpen := true
	if ev.IsOpen != nil {
		isOpen = *ev.IsOpen
	}
	id, err := s.branches.UpsertByExternalID(ctx, model.Branch{
		ExternalID: ev.ExternalID,
		Name:       ev.Name,
		City:       ev.City,
		Hours:      DefaultOpeningHours(),
		IsOpen:     isOpen,
	})
	if err != nil {
		return fmt.Errorf("upsert branch %s: %w", ev.ExternalID, err)
	}
	s.logger.Info("branch synced", "branch_id", id, "external_id", ev.ExternalID)
	return nil
}

func (s *Syncer) HandleTreatmentSynced(ctx context.Context, msg kafka.Message) error {
	var ev treatmentSyncedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode treatment synced event: %w", err)
	}
	if ev.ExternalID == "" || ev.Name == "" {
		return fmt.Errorf("treatment synced event missing external_id or name")
	}

	id, err := s.treatments.UpsertByExternalID(ctx, model.Treatment{
		ExternalID: ev.ExternalID,
		Name:       ev.Name,
	})
	if err != nil {
		return fmt.Errorf("upsert treatment %s: %w", ev.ExternalID, err)
	}
	s.logger.Info("treatment synced", "treatment_id", id, "external_id", ev.ExternalID)
	return nil
}

// Pull fetches the full EMR master data set through the gRPC provider
// and upserts it, same merge rules as the event path. Used by the
// periodic reconciliation loop when the provider is configured.
func (s *Syncer) Pull(ctx context.Context, p Provider) error {
	branches, err := p.FetchBranches(ctx)
	if err != nil {
		return fmt.Errorf("fetch branches: %w", err)
	}
	for _, b := range branches {
		if _, err := s.branches.UpsertByExternalID(ctx, model.Branch{
			ExternalID: b.ExternalID,
			Name:       b.Name,
			City:       b.City,
			Hours:      DefaultOpeningHours(),
			IsOpen:     b.IsOpen,
		}); err != nil {
			return fmt.Errorf("upsert branch %s: %w", b.ExternalID, err)
		}
	}

	treatments, err := p.FetchTreatments(ctx)
	if err != nil {
		return fmt.Errorf("fetch treatments: %w", err)
	}
	for _, t := range treatments {
		if _, err := s.treatments.UpsertByExternalID(ctx, model.Treatment{
			ExternalID: t.ExternalID,
			Name:       t.Name,
		}); err != nil {
			return fmt.Errorf("upsert treatment %s: %w", t.ExternalID, err)
		}
	}
	s.logger.Info("emr pull completed", "branches", len(branches), "treatments", len(treatments))
	return nil
}

// RunPeriodicPull reconciles against the EMR on a timer until the
// context is cancelled.
func (s *Syncer) RunPeriodicPull(ctx context.Context, p Provider, interval time.Duration) {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pull(ctx, p); err != nil {
				s.logger.Error("emr pull failed", "err", err)
			}
		}
	}
}

// DefaultOpeningHours is the schedule new branches start with until an
// operator edits it: weekdays 06:00-20:00, Saturday 08:00-18:00,
// Sunday closed.
func DefaultOpeningHours() model.WeekHours {
	weekday := &model.DayHours{Open: hoursAt(6, 0), Close: hoursAt(20, 0)}
	return model.WeekHours{
		time.Monday:    weekday,
		time.Tuesday:   weekday,
		time.Wednesday: weekday,
		time.Thursday:  weekday,
		time.Friday:    weekday,
		time.Saturday:  {Open: hoursAt(8, 0), Close: hoursAt(18, 0)},
	}
}

func hoursAt(h, m int) model.TimeOfDay {
	return model.TimeOfDay(h*60 + m)
}
