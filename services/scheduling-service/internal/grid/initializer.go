package grid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

type BranchSource interface {
	GetBranch(ctx context.Context, id string) (model.Branch, error)
	ListOpen(ctx context.Context) ([]model.Branch, error)
}

type RoomSource interface {
	ListByBranch(ctx context.Context, branchID string) ([]model.Room, error)
}

type CellWriter interface {
	UpsertCells(ctx context.Context, cells []model.GridCell, force bool) (int64, error)
}

// Initializer materializes the availability grid ahead of time: for
// every room and each of the next N days, Available cells across the
// branch's opening window, or Unavailable cells across the whole day
// when the branch is closed. Runs from cron via gridctl and from the
// admin endpoint.
type Initializer struct {
	branches BranchSource
	rooms    RoomSource
	cells    CellWriter
	logger   *slog.Logger

	now func() time.Time
}

func NewInitializer(branches BranchSource, rooms RoomSource, cells CellWriter, logger *slog.Logger) *Initializer {
	return &Initializer{
		branches: branches,
		rooms:    rooms,
		cells:    cells,
		logger:   logger,
		now:      time.Now,
	}
}

type InitReport struct {
	Branches     int   `json:"branches"`
	Rooms        int   `json:"rooms"`
	Days         int   `json:"days"`
	CellsWritten int64 `json:"cells_written"`
}

// Run seeds cells starting today. Without force, days that already
// have cells keep them; with force every cell is rewritten and any
// booking linkage on them is cleared.
func (i *Initializer) Run(ctx context.Context, days int, branchID string, force bool) (InitReport, error) {
	if days <= 0 {
		days = 30
	}

	var branches []model.Branch
	if branchID != "" {
		b, err := i.branches.GetBranch(ctx, branchID)
		if err != nil {
			return InitReport{}, err
		}
		branches = []model.Branch{b}
	} else {
		var err error
		branches, err = i.branches.ListOpen(ctx)
		if err != nil {
			return InitReport{}, err
		}
	}

	report := InitReport{Branches: len(branches), Days: days}
	start := model.DateOnly(i.now().UTC())

	for _, branch := range branches {
		rooms, err := i.rooms.ListByBranch(ctx, branch.ID)
		if err != nil {
			return report, fmt.Errorf("branch %s rooms: %w", branch.ID, err)
		}
		report.Rooms += len(rooms)

		for _, room := range rooms {
			var cells []model.GridCell
			for day := 0; day < days; day++ {
				date := start.AddDate(0, 0, day)
				cells = append(cells, dayCells(branch, room.ID, date)...)
			}
			written, err := i.cells.UpsertCells(ctx, cells, force)
			if err != nil {
				return report, fmt.Errorf("room %s cells: %w", room.ID, err)
			}
			report.CellsWritten += written
		}
		i.logger.Info("grid initialized for branch",
			"branch_id", branch.ID, "rooms", len(rooms), "days", days, "force", force)
	}
	return report, nil
}

// dayCells builds one room-day of cells. Open days get Available cells
// across [open, close); closed days get Unavailable cells across the
// whole day so nothing falls through to the booking-overlap fallback.
func dayCells(branch model.Branch, roomID string, date time.Time) []model.GridCell {
	hours := branch.Hours.For(date.Weekday())
	from, to := model.TimeOfDay(0), model.TimeOfDay(model.MinutesPerDay)
	status := model.SlotUnavailable
	if hours != nil {
		from, to = hours.Open.AlignToGrid(), hours.Close
		status = model.SlotAvailable
	}

	var cells []model.GridCell
	for t := from; t.Before(to); t = t.Add(model.SlotMinutes) {
		cells = append(cells, model.GridCell{
			BranchID: branch.ID,
			RoomID:   roomID,
			Date:     date,
			Slot:     t,
			Status:   status,
		})
	}
	return cells
}
