package names

import (
	"bytes"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// CopyUncompressed appends the uncompressed form of the name at start to
// out, following pointers but never emitting one. It assumes buf has
// already passed CheckCompressedName; it still guards slice bounds so a
// caller that skips validation gets a typed error rather than a panic.
//
// It returns the number of bytes appended to out and the offset of the
// first byte after the name in the original stream (the same endOffset
// CheckCompressedName would have returned).
func CopyUncompressed(out *bytes.Buffer, buf []byte, start int) (writtenLen int, endOffset int, err error) {
	begin := out.Len()
	pos := start
	firstPointerSeen := false
	fixedEnd := -1

	for {
		if pos >= len(buf) {
			return 0, 0, dnserr.New(dnserr.KindInvalidName, "truncated name")
		}
		b := buf[pos]

		if b&0xC0 == wire.PointerFlag {
			if pos+1 >= len(buf) {
				return 0, 0, dnserr.New(dnserr.KindInvalidName, "truncated compression pointer")
			}
			ptr := int(uint16(buf[pos])<<8|uint16(buf[pos+1])) & int(wire.PointerMask)
			if !firstPointerSeen {
				fixedEnd = pos + 2
				firstPointerSeen = true
			}
			pos = ptr
			continue
		}

		if b == 0 {
			out.WriteByte(0)
			pos++
			if !firstPointerSeen {
				fixedEnd = pos
			}
			return out.Len() - begin, fixedEnd, nil
		}

		labelLen := int(b)
		if pos+1+labelLen > len(buf) {
			return 0, 0, dnserr.New(dnserr.KindInvalidName, "label too long (truncated)")
		}
		out.WriteByte(b)
		out.Write(buf[pos+1 : pos+1+labelLen])
		pos += 1 + labelLen
	}
}

// RawNameLen returns the length, in bytes, of an uncompressed raw name
// starting at offset 0 of b, including its terminating zero label. It
// rejects a name that contains a compression pointer since callers of
// RawNameLen (rdata length bookkeeping) only ever see names already
// copied out uncompressed.
func RawNameLen(b []byte) (int, error) {
	pos := 0
	for {
		if pos >= len(b) {
			return 0, dnserr.New(dnserr.KindInvalidName, "truncated name")
		}
		l := b[pos]
		if l&0xC0 == wire.PointerFlag {
			return 0, dnserr.New(dnserr.KindInvalidName, "unexpected compression pointer in raw name")
		}
		pos++
		if l == 0 {
			return pos, nil
		}
		if pos+int(l) > len(b) {
			return 0, dnserr.New(dnserr.KindInvalidName, "label too long (truncated)")
		}
		pos += int(l)
	}
}
