package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrUnknownEmail       = errors.New("auth: email is not known")
	ErrInvalidCredentials = errors.New("auth: invalid password")
	ErrInactiveUser       = errors.New("auth: user is inactive")
	ErrSelfTarget         = errors.New("auth: operation not allowed on own account")
)
