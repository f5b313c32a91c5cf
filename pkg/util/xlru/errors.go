package xlru

import "errors"

var (
	// ErrInvalidSize Size <= 0 或超过上限。
	ErrInvalidSize = errors.New("xlru: invalid size")

	// ErrInvalidTTL TTL 为负。
	ErrInvalidTTL = errors.New("xlru: negative ttl")
)
