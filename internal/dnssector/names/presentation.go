package names

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// ToString renders the name at start as lowercased, dot-joined
// presentation form. The root name renders as the empty string. It is
// safe on trusted (already-validated) input and still bounds pointer
// chains by maxIndirections so a caller that passes a buffer this
// function hasn't itself validated can't be looped forever.
func ToString(buf []byte, start int, maxIndirections int) (string, error) {
	var labels []string
	pos := start
	lowestOffset := start
	indirections := 0

	for {
		if pos >= len(buf) {
			return "", dnserr.New(dnserr.KindInvalidName, "truncated name")
		}
		b := buf[pos]

		if b&0xC0 == wire.PointerFlag {
			if pos+1 >= len(buf) {
				return "", dnserr.New(dnserr.KindInvalidName, "truncated compression pointer")
			}
			ptr := int(binary.BigEndian.Uint16(buf[pos:pos+2]) & wire.PointerMask)
			if ptr >= lowestOffset {
				return "", dnserr.New(dnserr.KindInvalidName, "forward or self reference")
			}
			indirections++
			if indirections > maxIndirections {
				return "", dnserr.New(dnserr.KindInvalidName, "too many indirections")
			}
			lowestOffset = ptr
			pos = ptr
			continue
		}

		if b >= 0x40 {
			return "", dnserr.New(dnserr.KindInvalidName, "reserved label length byte")
		}

		if b == 0 {
			break
		}

		labelLen := int(b)
		pos++
		if pos+labelLen > len(buf) {
			return "", dnserr.New(dnserr.KindInvalidName, "label too long (truncated)")
		}
		labels = append(labels, strings.ToLower(string(buf[pos:pos+labelLen])))
		pos += labelLen
	}

	return strings.Join(labels, "."), nil
}

// FromString parses dotted presentation form into raw wire-format
// label bytes. A trailing dot marks the name fully qualified; otherwise
// defaultZone (already in raw form, or nil for just the root label) is
// appended. "" and "." both mean the root name.
func FromString(name string, defaultZone []byte) ([]byte, error) {
	if name == "" || name == "." {
		return []byte{0}, nil
	}

	fqdn := strings.HasSuffix(name, ".")
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return nil, dnserr.New(dnserr.KindInvalidName, "spurious dot in a label")
	}

	labels := strings.Split(trimmed, ".")
	var out bytes.Buffer
	for _, label := range labels {
		if len(label) == 0 {
			return nil, dnserr.New(dnserr.KindInvalidName, "empty label")
		}
		if len(label) > wire.MaxLabelLen {
			return nil, dnserr.New(dnserr.KindInvalidName, "label too long")
		}
		for i := 0; i < len(label); i++ {
			if label[i] > 127 {
				return nil, dnserr.New(dnserr.KindInvalidName, "non-ASCII character in a label")
			}
		}
		out.WriteByte(byte(len(label)))
		out.WriteString(label)
	}

	switch {
	case fqdn || defaultZone == nil:
		out.WriteByte(0)
	default:
		out.Write(defaultZone)
	}

	if out.Len() > wire.MaxHostnameLen {
		return nil, dnserr.New(dnserr.KindInvalidName, "name too long")
	}
	return out.Bytes(), nil
}
