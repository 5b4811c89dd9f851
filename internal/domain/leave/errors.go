package leave

import "errors"

var (
	ErrNotFound          = errors.New("leave request not found")
	ErrTypeNotFound      = errors.New("leave type not found")
	ErrNotApprover       = errors.New("not the pending approver for this request")
	ErrInvalidState      = errors.New("request is not in a state that allows this action")
	ErrForbidden         = errors.New("forbidden")
	ErrNotEligible       = errors.New("employee is not leave eligible")
	ErrInvalidDateRange  = errors.New("end date before start date")
	ErrHalfDayNotAllowed = errors.New("leave type does not allow half days")
	ErrNoticeTooShort    = errors.New("request does not meet the minimum notice period")
	ErrTooManyDays       = errors.New("request exceeds the maximum days per request")
)
