package consent

import "errors"

var (
	ErrNotFound         = errors.New("grant not found")
	ErrUnauthorized     = errors.New("access not authorized")
	ErrInvalidCode      = errors.New("invalid or already used code")
	ErrExpired          = errors.New("code expired")
	ErrThrottled        = errors.New("code already requested, retry later")
	ErrDoctorUnverified = errors.New("doctor is not verified")
	ErrInvalidType      = errors.New("unknown access type")
)
