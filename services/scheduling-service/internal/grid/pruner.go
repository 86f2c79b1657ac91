package grid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/storage"
)

type CellPruner interface {
	DeleteCellsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]storage.StaffSchedule, error)
	UpdateAvailability(ctx context.Context, staffID string, sched model.AvailabilitySchedule) error
}

// Pruner clears out the past: grid cells dated before the cutoff and
// stale date overrides in staff schedules. Recurring weekday entries
// are never touched.
type Pruner struct {
	cells     CellPruner
	schedules ScheduleStore
	logger    *slog.Logger
}

func NewPruner(cells CellPruner, schedules ScheduleStore, logger *slog.Logger) *Pruner {
	return &Pruner{cells: cells, schedules: schedules, logger: logger}
}

type PruneReport struct {
	DeletedSlots int64 `json:"deleted_slots"`
	UpdatedStaff int   `json:"updated_staff"`
}

func (p *Pruner) Run(ctx context.Context, cutoff time.Time) (PruneReport, error) {
	cutoff = model.DateOnly(cutoff)

	deleted, err := p.cells.DeleteCellsBefore(ctx, cutoff)
	if err != nil {
		return PruneReport{}, fmt.Errorf("delete grid cells: %w", err)
	}
	report := PruneReport{DeletedSlots: deleted}

	schedules, err := p.schedules.ListSchedules(ctx)
	if err != nil {
		return report, fmt.Errorf("list staff schedules: %w", err)
	}
	for _, s := range schedules {
		if removed := s.Availability.PruneOverridesBefore(cutoff); removed == 0 {
			continue
		}
		if err := p.schedules.UpdateAvailability(ctx, s.ID, s.Availability); err != nil {
			return report, fmt.Errorf("update staff %s availability: %w", s.ID, err)
		}
		report.UpdatedStaff++
	}

	p.logger.Info("grid pruned",
		"cutoff", model.DateString(cutoff),
		"deleted_slots", report.DeletedSlots,
		"updated_staff", report.UpdatedStaff)
	return report, nil
}
