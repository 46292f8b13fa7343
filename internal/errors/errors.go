package errors

import "errors"

var (
	ErrUnknownEndpoint  = errors.New("unknown egress endpoint")
	ErrNoneAvailable    = errors.New("no valid egress endpoint available")
	ErrReplenishFailed  = errors.New("replenishing egress endpoints failed")
	ErrNoProviderFiles  = errors.New("no provider files matched")
	ErrUnsupportedProxy = errors.New("unsupported proxy type")
)
