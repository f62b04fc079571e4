package match

import "errors"

var (
	ErrInvalidOrder   = errors.New("the order is invalid")
	ErrInvalidRequest = errors.New("the request is invalid")
	ErrNotFound       = errors.New("not found")
)
