package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/grid"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

type GridInitializer interface {
	Run(ctx context.Context, days int, branchID string, force bool) (grid.InitReport, error)
}

type GridPruner interface {
	Run(ctx context.Context, cutoff time.Time) (grid.PruneReport, error)
}

type GridReader interface {
	DayCells(ctx context.Context, roomID string, date time.Time) ([]model.GridCell, error)
}

// AdminHandler exposes the grid batch jobs over HTTP. Routes are
// mounted behind identity.RequireRole("admin"); the same jobs run from
// cron via gridctl.
type AdminHandler struct {
	initializer GridInitializer
	pruner      GridPruner
	grid        GridReader
	logger      *slog.Logger
}

func NewAdminHandler(initializer GridInitializer, pruner GridPruner, gridReader GridReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{initializer: initializer, pruner: pruner, grid: gridReader, logger: logger}
}

type initializeGridRequest struct {
	Days     int    `json:"days"`
	BranchID string `json:"branch_id,omitempty"`
	Force    bool   `json:"force"`
}

type pruneGridRequest struct {
	Cutoff string `json:"cutoff,omitempty"`
}

func (h *AdminHandler) InitializeGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req initializeGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Days < 0 || req.Days > 366 {
		http.Error(w, "days must be between 0 and 366", http.StatusBadRequest)
		return
	}

	report, err := h.initializer.Run(r.Context(), req.Days, strings.TrimSpace(req.BranchID), req.Force)
	if err != nil {
		h.logger.Error("grid initialize failed", "err", err)
		http.Error(w, "grid initialize failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) PruneGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pruneGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	cutoff := model.DateOnly(time.Now().UTC())
	if s := strings.TrimSpace(req.Cutoff); s != "" {
		var err error
		cutoff, err = model.ParseDate(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	report, err := h.pruner.Run(r.Context(), cutoff)
	if err != nil {
		h.logger.Error("grid prune failed", "err", err)
		http.Error(w, "grid prune failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type gridCellView struct {
	Slot      string `json:"slot"`
	Status    string `json:"status"`
	BookingID string `json:"booking_id,omitempty"`
}

// GridDay shows one room-day of cells, for inspecting what the search
// engine sees.
func (h *AdminHandler) GridDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cells, err := h.grid.DayCells(r.Context(), roomID, date)
	if err != nil {
		h.logger.Error("grid day read failed", "err", err)
		http.Error(w, "grid day read failed", http.StatusInternalServerError)
		return
	}
	views := make([]gridCellView, 0, len(cells))
	for _, c := range cells {
		views = append(views, gridCellView{Slot: c.Slot.String(), Status: string(c.Status), BookingID: c.BookingID})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"date":    model.DateString(date),
		"cells":   views,
	})
}
