package fetcher

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

func lookupEncoding(charset string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(charset))
	if err != nil {
		return nil, eris.Wrapf(err, "charset: unsupported charset %q", charset)
	}
	return enc, nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// DecodeReader wraps r so it yields UTF-8 text from the given charset.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	if isUTF8(charset) {
		return r, nil
	}
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// EncodeWriter wraps w so UTF-8 text written to it is stored in the given charset.
// Close flushes any buffered bytes; it does not close w.
func EncodeWriter(w io.Writer, charset string) (io.WriteCloser, error) {
	if isUTF8(charset) {
		return nopWriteCloser{w}, nil
	}
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}

// DecodeString converts s from the given charset to UTF-8.
func DecodeString(s, charset string) (string, error) {
	if isUTF8(charset) {
		return s, nil
	}
	enc, err := lookupEncoding(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().String(s)
	if err != nil {
		return "", eris.Wrapf(err, "charset: decode %s", charset)
	}
	return out, nil
}
