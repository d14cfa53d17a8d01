package cryptoutils

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// maxSafeInteger is the largest integer a JavaScript number holds exactly.
const maxSafeInteger = 1<<53 - 1

// HashContent returns the SHA-256 digest of raw bytes.
func HashContent(data []byte) interfaces.Digest {
	return interfaces.Digest(sha256.Sum256(data))
}

// HashMetadata returns HashContent(Canonicalize(m)).
func HashMetadata(m *interfaces.CredentialMetadata) (interfaces.Digest, error) {
	canonical, err := Canonicalize(m)
	if err != nil {
		return interfaces.Digest{}, err
	}
	return HashContent(canonical), nil
}

// Canonicalize encodes credential metadata with keys sorted, no whitespace and
// integers in decimal:
//
//	{"credentialNo":"CERT-100","degreeName":"BSc","graduationYear":2024,"studentEmail":"a@b.edu"}
func Canonicalize(m *interfaces.CredentialMetadata) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: metadata is nil", interfaces.ErrValidation)
	}
	return canonicalObject(map[string]any{
		"credentialNo":   m.CredentialNo,
		"degreeName":     m.DegreeName,
		"graduationYear": int64(m.GraduationYear),
		"studentEmail":   m.StudentEmail,
	})
}

// CanonicalizeJSON re-encodes a flat JSON object in canonical form. Values
// must be strings, integral numbers, booleans or null. Keys are sorted by
// UTF-16 code units.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: metadata is not a JSON object: %v", interfaces.ErrValidation, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: metadata is not a JSON object", interfaces.ErrValidation)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after metadata object", interfaces.ErrValidation)
	}

	return canonicalObject(obj)
}

func canonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeValue(&buf, k, obj[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// lessUTF16 orders strings by UTF-16 code units, as JavaScript sorts object
// keys. It differs from byte order only for characters outside the BMP.
func lessUTF16(a, b string) bool {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b))) < 0
}

func writeValue(buf *bytes.Buffer, key string, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		return writeString(buf, val)
	case int64:
		return writeInteger(buf, key, val)
	case int:
		return writeInteger(buf, key, int64(val))
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return writeInteger(buf, key, n)
		}
		f, err := val.Float64()
		if err != nil || f != math.Trunc(f) {
			return fmt.Errorf("%w: field %q must be an integer", interfaces.ErrValidation, key)
		}
		if math.Abs(f) > maxSafeInteger {
			return fmt.Errorf("%w: field %q is outside the exactly representable integer range", interfaces.ErrValidation, key)
		}
		return writeInteger(buf, key, int64(f))
	default:
		return fmt.Errorf("%w: field %q has unsupported type %T", interfaces.ErrValidation, key, v)
	}
	return nil
}

func writeInteger(buf *bytes.Buffer, key string, n int64) error {
	if n > maxSafeInteger || n < -maxSafeInteger {
		return fmt.Errorf("%w: field %q is outside the exactly representable integer range", interfaces.ErrValidation, key)
	}
	buf.WriteString(strconv.FormatInt(n, 10))
	return nil
}

// writeString quotes s the way JSON.stringify does: only the quote, the
// backslash and C0 controls are escaped. No HTML or U+2028 escaping.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid UTF-8", interfaces.ErrValidation)
	}

	const hexDigits = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}
