// Package charset detects and decodes the text encoding of plain-text books.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	netcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

const (
	UTF8    = "utf-8"
	UTF16LE = "utf-16le"
	UTF16BE = "utf-16be"
	GB18030 = "gb18030"
	Big5    = "big5"

	// SampleSize is how many leading bytes Detect needs to decide.
	SampleSize = 64 * 1024

	// maxReplacementRatio is the share of undecodable runes tolerated before a
	// candidate multi-byte encoding is rejected.
	maxReplacementRatio = 0.01
)

// ErrDecode is returned when an encoding name is unknown or decoding fails.
var ErrDecode = errors.New("charset: decode failed")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Detect guesses the encoding of sample, which should be the first SampleSize
// bytes of the file. It always returns a usable name.
func Detect(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, bomUTF8):
		return UTF8
	case bytes.HasPrefix(sample, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return UTF16BE
	}

	if validUTF8Prefix(sample) {
		return UTF8
	}

	for _, candidate := range []struct {
		name string
		enc  encoding.Encoding
	}{
		{GB18030, simplifiedchinese.GB18030},
		{Big5, traditionalchinese.Big5},
	} {
		if decodesCleanly(candidate.enc, sample) {
			return candidate.name
		}
	}

	_, name, _ := netcharset.DetermineEncoding(sample, "text/plain")
	return name
}

// validUTF8Prefix reports whether sample is UTF-8, tolerating a rune cut off
// by the sample boundary.
func validUTF8Prefix(sample []byte) bool {
	if utf8.Valid(sample) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(sample); cut++ {
		head := sample[:len(sample)-cut]
		if utf8.Valid(head) && !utf8.FullRune(sample[len(sample)-cut:]) {
			return true
		}
	}
	return false
}

func decodesCleanly(enc encoding.Encoding, sample []byte) bool {
	decoded, err := enc.NewDecoder().Bytes(sample)
	if err != nil {
		return false
	}
	total := utf8.RuneCount(decoded)
	if total == 0 {
		return false
	}
	bad := bytes.Count(decoded, []byte(string(utf8.RuneError)))
	// The sample may end inside a multi-byte sequence.
	if bad > 0 && bytes.HasSuffix(decoded, []byte(string(utf8.RuneError))) {
		bad--
	}
	return float64(bad)/float64(total) <= maxReplacementRatio
}

// Lookup returns the encoding registered under name.
func Lookup(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", UTF8, "utf8":
		return unicode.UTF8, nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrDecode, name)
	}
	return enc, nil
}

// Decode converts data from the named encoding to a UTF-8 string and strips a
// leading byte order mark.
func Decode(name string, data []byte) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	if enc == unicode.UTF8 {
		return strings.TrimPrefix(string(bytes.ToValidUTF8(data, []byte("\ufffd"))), "\ufeff"), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

// DecodeOrFallback decodes data and falls back to lossy UTF-8 when the named
// encoding is unusable. The returned error is non-nil only to report the fallback.
func DecodeOrFallback(name string, data []byte) (string, error) {
	s, err := Decode(name, data)
	if err == nil {
		return s, nil
	}
	fallback, _ := Decode(UTF8, data)
	return fallback, err
}
