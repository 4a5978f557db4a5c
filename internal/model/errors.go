package model

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrPlanPaused   = errors.New("meal plan is paused")
	ErrPlanExpired  = errors.New("meal plan has expired")
	ErrPlanDeleted  = errors.New("meal plan has been deleted")
)
