package domain

import "errors"

var (
	// ErrInvalidAddress marks input rejected before any remote call.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrUnsupportedChain marks a chain selector outside the registry.
	ErrUnsupportedChain = errors.New("unsupported chain")
)
