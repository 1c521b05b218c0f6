// Package codec performs the raster work for thumbnails: decoding an
// uploaded image, bounding it to a maximum dimension, and re-encoding it in
// the same format family. Only PNG and JPEG are accepted.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Format is the closed set of supported image formats.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// AcceptedFormats lists the formats uploads may use, for error messages.
var AcceptedFormats = []string{"png", "jpg", "jpeg"}

// ErrUnsupportedFormat is returned for uploads that are not PNG or JPEG.
var ErrUnsupportedFormat = fmt.Errorf("image must be one of the formats: %s", strings.Join(AcceptedFormats, ", "))

// ErrDecode is returned when the source bytes cannot be decoded.
var ErrDecode = errors.New("cannot decode image data")

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Ext returns the file extension (without dot) for the format.
func (f Format) Ext() string {
	return string(f)
}

// FormatFromContentType maps an upload's declared content type to a Format.
func FormatFromContentType(contentType string) (Format, error) {
	switch {
	case strings.HasSuffix(contentType, "png"):
		return PNG, nil
	case strings.HasSuffix(contentType, "jpg"), strings.HasSuffix(contentType, "jpeg"):
		return JPEG, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// SniffBase64Format detects the format of a base64-encoded image from its
// leading characters: PNG payloads start with "iVBORw0KGg", JPEG with "/9j/4".
func SniffBase64Format(encoded string) (Format, error) {
	switch {
	case strings.HasPrefix(encoded, "iVBORw0KGg"):
		return PNG, nil
	case strings.HasPrefix(encoded, "/9j/4"):
		return JPEG, nil
	default:
		return "", ErrUnsupportedFormat
	}
}
