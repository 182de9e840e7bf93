package serialport

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Charset converts between wire bytes and text. Decode fails instead of
// substituting replacement characters, so garbage can be told apart from data.
type Charset interface {
	Name() string
	Decode(b []byte) (string, error)
	Encode(s string) ([]byte, error)
}

// LookupCharset resolves a charset by name. ascii and utf-8 are strict
// built-ins; anything else goes through the WHATWG index in x/text.
func LookupCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ascii", "us-ascii":
		return asciiCharset{}, nil
	case "utf-8", "utf8":
		return utf8Charset{}, nil
	}
	// WHATWG maps "ascii" labels to windows-1252, hence the cases above.
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "unknown charset %q", name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = name
	}
	return textCharset{name: canonical, enc: enc}, nil
}

type asciiCharset struct{}

func (asciiCharset) Name() string { return "ascii" }

func (asciiCharset) Decode(b []byte) (string, error) {
	for i, c := range b {
		if c >= utf8.RuneSelf {
			return "", errors.Errorf("byte 0x%02x at offset %d is not ascii", c, i)
		}
	}
	return string(b), nil
}

func (asciiCharset) Encode(s string) ([]byte, error) {
	for i, r := range s {
		if r >= utf8.RuneSelf {
			return nil, errors.Errorf("rune %q at offset %d is not ascii", r, i)
		}
	}
	return []byte(s), nil
}

type utf8Charset struct{}

func (utf8Charset) Name() string { return "utf-8" }

func (utf8Charset) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.New("invalid utf-8 sequence")
	}
	return string(b), nil
}

func (utf8Charset) Encode(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, errors.New("invalid utf-8 string")
	}
	return []byte(s), nil
}

type textCharset struct {
	name string
	enc  encoding.Encoding
}

func (c textCharset) Name() string { return c.name }

func (c textCharset) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "decoding %s", c.name)
	}
	if strings.ContainsRune(string(out), utf8.RuneError) {
		return "", errors.Errorf("undecodable bytes for %s", c.name)
	}
	return string(out), nil
}

func (c textCharset) Encode(s string) ([]byte, error) {
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", c.name)
	}
	return out, nil
}
