package polar

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope    = errors.New("polar: invalid magic number")
	ErrUnsupportedVersion   = errors.New("polar: unsupported version")
	ErrInvalidCompression   = errors.New("polar: invalid compression type")
	ErrInvalidSectionRange  = errors.New("polar: invalid section range")
	ErrTruncatedInput       = errors.New("polar: truncated input")
	ErrDecompressionFailure = errors.New("polar: decompression failed")
	ErrInvalidPalette       = errors.New("polar: invalid palette")
	ErrInvalidTag           = errors.New("polar: invalid block entity tag")
	ErrInvalidChunk         = errors.New("polar: invalid chunk")
)

// VersionError reports an archive revision this reader does not understand.
type VersionError struct {
	Max   int16
	Found int16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("polar: unsupported version: up to %d is supported, found %d", e.Max, e.Found)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}
