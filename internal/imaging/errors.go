package imaging

import (
	"errors"
	"fmt"
)

// ErrInvalidTensor reports raw tensor values of the wrong size or range.
var ErrInvalidTensor = errors.New("invalid tensor")

// DecodeError reports bytes that are not a decodable raster image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError reports an image that decoded but could not be
// converted to RGB.
type UnsupportedFormatError struct {
	Format string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported %s image: %s", e.Format, e.Reason)
}
