package scheduling

import (
	"context"
	"sort"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Resolver answers which rooms and staff can host a treatment at all,
// before any time scanning happens. Results are sorted by id so the
// search engine's first-fit choice is deterministic.
type Resolver struct {
	rooms RoomDirectory
	staff StaffDirectory
}

func NewResolver(rooms RoomDirectory, staff StaffDirectory) *Resolver {
	return &Resolver{rooms: rooms, staff: staff}
}

// Rooms returns the branch rooms assigned to the treatment that admit
// the patient's gender. An empty result is ErrNoCompatibleRoom.
func (r *Resolver) Rooms(ctx context.Context, branchID, treatmentID string, patient model.Gender) ([]model.Room, error) {
	all, err := r.rooms.RoomsForTreatment(ctx, branchID, treatmentID)
	if err != nil {
		return nil, err
	}
	compatible := make([]model.Room, 0, len(all))
	for _, room := range all {
		if room.Gender.Admits(patient) {
			compatible = append(compatible, room)
		}
	}
	if len(compatible) == 0 {
		return nil, ErrNoCompatibleRoom
	}
	sort.Slice(compatible, func(i, j int) bool { return compatible[i].ID < compatible[j].ID })
	return compatible, nil
}

// Staff returns the branch staff assigned to the treatment. Staff carry
// no gender constraint; only rooms do. An empty result is
// ErrNoCompatibleStaff.
func (r *Resolver) Staff(ctx context.Context, branchID, treatmentID string) ([]model.Staff, error) {
	all, err := r.staff.StaffForTreatment(ctx, branchID, treatmentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoCompatibleStaff
	}
	sorted := make([]model.Staff, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted, nil
}
