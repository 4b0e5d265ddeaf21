// Package jsonenc writes JSON in the layout existing transcripts were
// stored with: ", " and ": " separators and every non-ASCII character
// escaped as \uXXXX. Content stored through this package compares equal,
// byte for byte, with rows written before the Go service existed.
package jsonenc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Marshal encodes v in the spaced, ASCII-only layout.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return Respace(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// MarshalString is Marshal returning a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Respace rewrites compact JSON into the spaced, ASCII-only layout.
// The input must be valid compact JSON as produced by encoding/json.
func Respace(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/8)
	inString := false
	for i := 0; i < len(compact); {
		c := compact[i]
		if inString {
			switch {
			case c == '\\':
				out = append(out, compact[i], compact[i+1])
				i += 2
				continue
			case c == '"':
				inString = false
			case c >= utf8.RuneSelf:
				r, size := utf8.DecodeRune(compact[i:])
				out = appendEscaped(out, r)
				i += size
				continue
			}
			out = append(out, c)
			i++
			continue
		}

		out = append(out, c)
		switch c {
		case '"':
			inString = true
		case ',', ':':
			out = append(out, ' ')
		}
		i++
	}
	return out
}

func appendEscaped(out []byte, r rune) []byte {
	if r > 0xFFFF {
		r1, r2 := utf16.EncodeRune(r)
		out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
		return out
	}
	return fmt.Appendf(out, `\u%04x`, r)
}
