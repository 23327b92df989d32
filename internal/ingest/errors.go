package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every per-item error wraps exactly one of these.
var (
	ErrDecode    = errors.New("decode failure")
	ErrTransform = errors.New("transform failure")
	ErrIO        = errors.New("io failure")
)

// Failure kinds reported to observers and logs.
const (
	KindDecode    = "decode"
	KindTransform = "transform"
	KindIO        = "io"
)

// Wrap tags err with marker and prefixes the failing operation and item name.
func Wrap(marker error, operation, name string, err error) error {
	detail := strings.TrimSpace(operation)
	if name = strings.TrimSpace(name); name != "" {
		if detail != "" {
			detail += " "
		}
		detail += name
	}
	if detail == "" {
		detail = "ingest"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind classifies err by its failure marker, returning "" when none applies.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrTransform):
		return KindTransform
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return ""
	}
}
