package names

import (
	"bytes"
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// suffixEntry is one slot of a SuffixDict: the raw name suffix that was
// seen and the absolute offset in the message it was emitted at.
type suffixEntry struct {
	offset int
	name   []byte
}

// SuffixDict is the bounded table that backs outgoing name compression.
// Slot 0 is reserved for the question name (set via SetQuestionName);
// the remaining SuffixDictSize-1 slots fill in order and then evict
// round-robin, so the table never grows and compression stays linear
// even on hostile input with many distinct names.
type SuffixDict struct {
	entries [wire.SuffixDictSize]*suffixEntry
	next    int
}

// NewSuffixDict returns an empty dictionary ready for use.
func NewSuffixDict() *SuffixDict {
	return &SuffixDict{next: 1}
}

// SetQuestionName installs the question name in the dictionary's fixed
// slot 0, the most valuable entry since every record in a typical
// response shares a suffix with it.
func (d *SuffixDict) SetQuestionName(name []byte, offset int) {
	d.entries[0] = &suffixEntry{offset: offset, name: append([]byte(nil), name...)}
}

// Insert looks up suffix (a raw, uncompressed name starting at some
// label boundary) among the existing entries. If a stored name matches
// case-insensitively, its offset is returned as a hit. Otherwise the
// suffix is added to the table — unless offset can't be represented in
// a 14-bit pointer or the suffix is too short to be worth compressing
// or too long to fit a single entry, in which case Insert silently
// declines and the caller falls back to emitting the label literally.
func (d *SuffixDict) Insert(suffix []byte, offset int) (hitOffset int, hit bool) {
	for _, e := range d.entries {
		if e == nil {
			continue
		}
		if len(e.name) == len(suffix) && bytes.EqualFold(e.name, suffix) {
			return e.offset, true
		}
	}

	if offset >= (1 << 14) {
		return 0, false
	}
	if len(suffix) <= 2 || len(suffix) > 127 {
		return 0, false
	}

	idx := d.next
	d.next++
	if d.next >= wire.SuffixDictSize {
		d.next = 1
	}
	d.entries[idx] = &suffixEntry{offset: offset, name: append([]byte(nil), suffix...)}
	return 0, false
}

// CopyCompressed emits nameBuf (a trusted, uncompressed raw name) into
// out, substituting a compression pointer the first time a label
// boundary's remaining suffix is already in dict. baseOffset is the
// absolute offset in the final message at which this name's first byte
// lands, so new entries are recorded with their true on-wire offset.
func CopyCompressed(dict *SuffixDict, out *bytes.Buffer, nameBuf []byte, baseOffset int) error {
	pos := 0
	start := out.Len()
	for {
		if pos >= len(nameBuf) {
			return dnserr.New(dnserr.KindInvalidName, "truncated name")
		}

		suffix := nameBuf[pos:]
		curOffset := baseOffset + out.Len() - start
		if hitOffset, hit := dict.Insert(suffix, curOffset); hit {
			var ptr [2]byte
			binary.BigEndian.PutUint16(ptr[:], uint16(wire.PointerFlag)<<8|uint16(hitOffset))
			out.Write(ptr[:])
			return nil
		}

		labelLen := int(nameBuf[pos])
		if labelLen == 0 {
			out.WriteByte(0)
			return nil
		}
		if pos+1+labelLen > len(nameBuf) {
			return dnserr.New(dnserr.KindInvalidName, "label too long (truncated)")
		}
		out.WriteByte(byte(labelLen))
		out.Write(nameBuf[pos+1 : pos+1+labelLen])
		pos += 1 + labelLen
	}
}
