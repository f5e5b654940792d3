package services

import "errors"

var (
	ErrDuplicateEmail         = errors.New("email already in use")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrNotFound               = errors.New("not found")
	ErrNotFoundOrUnauthorized = errors.New("course not found or unauthorized")
	ErrInvalidInput           = errors.New("invalid input")
)
