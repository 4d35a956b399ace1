package ticketing

import "errors"

var (
	ErrEventNotFound          = errors.New("ticketing: event not found")
	ErrEventClosed            = errors.New("ticketing: event date has passed")
	ErrPlanNotFound           = errors.New("ticketing: ticket plan not found for event")
	ErrSoldOut                = errors.New("ticketing: no tickets remaining for plan")
	ErrInstallmentsNotAllowed = errors.New("ticketing: installment payment not allowed for plan")
	ErrTicketNotFound         = errors.New("ticketing: ticket not found")
	ErrNotAuthorized          = errors.New("ticketing: operator does not own the ticket's event")
	ErrNotPaid                = errors.New("ticketing: ticket is not fully paid")
	ErrAlreadyPaid            = errors.New("ticketing: ticket is already fully paid")
	ErrAlreadyUsed            = errors.New("ticketing: ticket already used")
	ErrInvalidAmount          = errors.New("ticketing: invalid payment amount")
	ErrBelowMinimum           = errors.New("ticketing: amount below minimum installment")
	ErrConflict               = errors.New("ticketing: concurrent update conflict")
)
