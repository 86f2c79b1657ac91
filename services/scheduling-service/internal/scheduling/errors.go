package scheduling

import "errors"

// Domain errors. Handlers map these to HTTP statuses; storage maps pgx
// errors into them so callers never see driver errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoCompatibleRoom  = errors.New("no room supports this treatment for this gender")
	ErrNoCompatibleStaff = errors.New("no staff member is qualified for this treatment")
	ErrGenderMismatch    = errors.New("room does not admit this patient gender")
	ErrSlotUnavailable   = errors.New("the requested slot is no longer available")
	ErrStaffBusy         = errors.New("staff member is already engaged at this time")
	ErrBranchClosed      = errors.New("branch is closed")
)
