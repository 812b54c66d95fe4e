package fetch

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultMaxBodyBytes caps a fetched body.
var DefaultMaxBodyBytes int64 = 256 << 20

// ErrBodyTooLarge is returned when a body exceeds the configured maximum.
var ErrBodyTooLarge = errors.New("response body too large")

// ReadLimited reads r to the end, failing once more than limit bytes have
// been seen. A limit of zero or less reads without a bound.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// DecodeText converts body to UTF-8 using the charset of contentType.
// Without a usable charset, valid UTF-8 is kept as is and anything else is
// read as Windows-1252, the usual encoding of spreadsheet exports. Bytes
// that cannot be decoded become U+FFFD; the result is always valid UTF-8.
func DecodeText(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
		if enc, err := htmlindex.Get(params["charset"]); err == nil {
			if text, err := enc.NewDecoder().Bytes(body); err == nil {
				return strings.ToValidUTF8(string(text), "\uFFFD")
			}
		}
	}
	if utf8.Valid(body) {
		return string(body)
	}
	text, err := charmap.Windows1252.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	return string(text)
}
