package service

import "errors"

var (
	ErrValidation          = errors.New("validation")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAlreadyCancelled    = errors.New("order already cancelled")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrCouponRejected      = errors.New("coupon rejected")
)
