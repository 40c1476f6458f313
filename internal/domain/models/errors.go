package models

import "errors"

var (
	ErrAccessDenied = errors.New("access denied")
	ErrUnknownBot   = errors.New("unknown bot")
	ErrInvalidInput = errors.New("invalid input")
)
