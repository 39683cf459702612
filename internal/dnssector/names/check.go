// Package names implements the DNS name codec: validating untrusted
// compressed names, copying them out uncompressed, converting to and
// from presentation form, and compressing fresh names through a
// bounded suffix dictionary.
package names

import (
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// CheckCompressedName walks a name starting at start in an untrusted
// buffer and returns the offset of the first byte after the name in the
// original stream. It never allocates; it exists purely to prove the
// name is well-formed before anything else in the toolkit trusts it.
//
// Pointer cycles and forward references are rejected via a
// monotonically shrinking lowest-offset barrier: a pointer's target
// must be strictly smaller than the smallest offset seen since the
// previous hop. Well-formed DNS compression always points backwards,
// so this is sufficient without a visited-set.
func CheckCompressedName(buf []byte, start int, maxIndirections int) (endOffset int, err error) {
	endOffset, _, err = CheckCompressedNameCompression(buf, start, maxIndirections)
	return endOffset, err
}

// CheckCompressedNameCompression is CheckCompressedName plus a report of
// whether the name actually contained a compression pointer, so callers
// that need to track a packet's maybe_compressed flag don't have to
// re-derive it from the returned offset.
func CheckCompressedNameCompression(buf []byte, start int, maxIndirections int) (endOffset int, compressed bool, err error) {
	pos := start
	lowestOffset := start
	nameLen := 0
	indirections := 0
	firstPointerSeen := false
	fixedEnd := -1

	for {
		if pos >= len(buf) {
			return 0, false, dnserr.New(dnserr.KindInvalidName, "truncated name")
		}
		b := buf[pos]

		if b&0xC0 == wire.PointerFlag {
			if pos+1 >= len(buf) {
				return 0, false, dnserr.New(dnserr.KindInvalidName, "truncated compression pointer")
			}
			ptr := int(binary.BigEndian.Uint16(buf[pos:pos+2]) & wire.PointerMask)
			if !firstPointerSeen {
				fixedEnd = pos + 2
				firstPointerSeen = true
			}
			if ptr >= lowestOffset {
				return 0, false, dnserr.New(dnserr.KindInvalidName, "forward or self reference")
			}
			indirections++
			if indirections > maxIndirections {
				return 0, false, dnserr.New(dnserr.KindInvalidName, "too many indirections")
			}
			lowestOffset = ptr
			pos = ptr
			continue
		}

		if b >= 0x40 {
			// 0x40..0xBF with the compression bits excluded above is the
			// reserved range a length byte may never occupy.
			return 0, false, dnserr.New(dnserr.KindInvalidName, "reserved label length byte")
		}

		if b == 0 {
			pos++
			if !firstPointerSeen {
				fixedEnd = pos
			}
			return fixedEnd, firstPointerSeen, nil
		}

		labelLen := int(b)
		nameLen += labelLen + 1
		if nameLen > wire.MaxHostnameLen {
			return 0, false, dnserr.New(dnserr.KindInvalidName, "name too long")
		}
		pos++
		if pos+labelLen > len(buf) {
			return 0, false, dnserr.New(dnserr.KindInvalidName, "label too long (truncated)")
		}
		pos += labelLen
	}
}
