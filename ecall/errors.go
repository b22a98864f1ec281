package ecall

import "errors"

var (
	// ErrBusy is returned when a session is started while another one is still active.
	ErrBusy = errors.New("an eCall session is already in progress")
	// ErrDuplicate is returned when the MSD is modified after an import, or imported after it was set.
	ErrDuplicate = errors.New("the MSD has already been set")
	// ErrOverflow is returned when a buffer is too small or too large.
	ErrOverflow = errors.New("buffer overflow")
	// ErrNotFound is returned when no MSD is available.
	ErrNotFound = errors.New("no MSD available")
	// ErrInvalidHandle is returned for an unknown session reference.
	ErrInvalidHandle = errors.New("invalid eCall reference")
	// ErrFault is returned when an operation fails for other reasons.
	ErrFault = errors.New("eCall operation failed")
	// ErrBadParameter is returned when a parameter is out of range.
	ErrBadParameter = errors.New("bad parameter")
)
