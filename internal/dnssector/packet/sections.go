package packet

import (
	"bytes"
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// emitRecordDecompressed re-emits one non-question record from src at
// recordStart into out with every name — the owner name and, for
// name-bearing types, the embedded rdata name(s) — expanded to its
// uncompressed form. It returns the offset in src right after this
// record so the caller can continue walking.
func emitRecordDecompressed(out *bytes.Buffer, src []byte, recordStart int) (int, error) {
	_, nameEnd, err := names.CopyUncompressed(out, src, recordStart)
	if err != nil {
		return 0, err
	}
	if nameEnd+wire.RRHeaderSize > len(src) {
		return 0, dnserr.New(dnserr.KindInvalidPacket, "truncated record header")
	}
	rrtype := wire.RRType(binary.BigEndian.Uint16(src[nameEnd : nameEnd+2]))
	rrclass := binary.BigEndian.Uint16(src[nameEnd+2 : nameEnd+4])
	ttl := binary.BigEndian.Uint32(src[nameEnd+4 : nameEnd+8])
	rdlen := binary.BigEndian.Uint16(src[nameEnd+8 : nameEnd+10])
	rdataStart := nameEnd + wire.RRHeaderSize
	rdataEnd := rdataStart + int(rdlen)

	headerPos := out.Len()
	out.Write(make([]byte, wire.RRHeaderSize))
	rdataBegin := out.Len()

	switch rrtype {
	case wire.RRTypeNS, wire.RRTypeCNAME, wire.RRTypePTR, wire.RRTypeDNAME:
		if _, _, err := names.CopyUncompressed(out, src, rdataStart); err != nil {
			return 0, err
		}
	case wire.RRTypeMX:
		out.Write(src[rdataStart : rdataStart+2])
		if _, _, err := names.CopyUncompressed(out, src, rdataStart+2); err != nil {
			return 0, err
		}
	case wire.RRTypeSOA:
		_, mid, err := names.CopyUncompressed(out, src, rdataStart)
		if err != nil {
			return 0, err
		}
		_, end2, err := names.CopyUncompressed(out, src, mid)
		if err != nil {
			return 0, err
		}
		out.Write(src[end2 : end2+20])
	default:
		out.Write(src[rdataStart:rdataEnd])
	}

	newRdlen := out.Len() - rdataBegin
	var hdr [wire.RRHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(rrtype))
	binary.BigEndian.PutUint16(hdr[2:4], rrclass)
	binary.BigEndian.PutUint32(hdr[4:8], ttl)
	binary.BigEndian.PutUint16(hdr[8:10], uint16(newRdlen))
	copy(out.Bytes()[headerPos:headerPos+wire.RRHeaderSize], hdr[:])

	return rdataEnd, nil
}

// rebuildDecompressed walks the whole message and re-emits it with
// every name expanded, while recording where each offset in track
// lands in the new buffer (len(p.buf) is a valid sentinel meaning "end
// of buffer"). Offsets not found map to -1.
func (p *Packet) rebuildDecompressed(track []int) (*bytes.Buffer, []int, error) {
	out := &bytes.Buffer{}
	mapped := make([]int, len(track))
	for i := range mapped {
		mapped[i] = -1
	}
	mark := func(old int) {
		for i, t := range track {
			if t == old && mapped[i] == -1 {
				mapped[i] = out.Len()
			}
		}
	}

	out.Write(p.buf[:wire.HeaderSize])

	if p.question != nil {
		mark(p.offsets.Question)
		_, nameEnd, err := names.CopyUncompressed(out, p.buf, p.offsets.Question)
		if err != nil {
			return nil, nil, err
		}
		out.Write(p.buf[nameEnd : nameEnd+wire.RRQuestionHeaderSize])
	}

	walk := func(start int, count uint16) error {
		pos := start
		for i := 0; i < int(count); i++ {
			mark(pos)
			next, err := emitRecordDecompressed(out, p.buf, pos)
			if err != nil {
				return err
			}
			pos = next
		}
		return nil
	}
	if off, ok := p.SectionOffset(wire.Answer); ok {
		if err := walk(off, p.ancount); err != nil {
			return nil, nil, err
		}
	}
	if off, ok := p.SectionOffset(wire.NameServers); ok {
		if err := walk(off, p.nscount); err != nil {
			return nil, nil, err
		}
	}
	if off, ok := p.SectionOffset(wire.Additional); ok {
		if err := walk(off, p.arcount); err != nil {
			return nil, nil, err
		}
	}
	mark(len(p.buf))

	if out.Len() > p.limits.MaxUncompressedSize {
		return nil, nil, dnserr.New(dnserr.KindPacketTooLarge, "decompression would exceed %d bytes", p.limits.MaxUncompressedSize)
	}
	return out, mapped, nil
}

func (p *Packet) installDecompressed(buf []byte) error {
	prevEdns := p.edns
	if err := (func() error {
		// Recompute reads p.buf, so install first, recompute after.
		p.buf = buf
		p.maybeCompressed = false
		return p.Recompute()
	})(); err != nil {
		return err
	}
	if prevEdns.Present && !p.edns.Present {
		p.logger.Warn(map[string]any{}, "EDNS record lost across decompression")
	}
	return nil
}

// DecompressInPlace rebuilds the buffer with every compression pointer
// expanded to its literal labels. It is a no-op if the buffer is
// already known not to contain any.
func (p *Packet) DecompressInPlace() error {
	if !p.maybeCompressed {
		return nil
	}
	out, _, err := p.rebuildDecompressed(nil)
	if err != nil {
		return err
	}
	return p.installDecompressed(out.Bytes())
}

// DecompressTrackingOffset is DecompressInPlace plus "uncompress with
// previous offset": it follows the record boundary whose
// pre-decompression absolute offset equals target and returns where
// that boundary lands in the rebuilt buffer (len(p.buf) maps to the new
// end-of-buffer). If the buffer has no compression pointers, target is
// returned unchanged.
func (p *Packet) DecompressTrackingOffset(target int) (int, error) {
	if !p.maybeCompressed {
		return target, nil
	}
	out, mapped, err := p.rebuildDecompressed([]int{target})
	if err != nil {
		return 0, err
	}
	if err := p.installDecompressed(out.Bytes()); err != nil {
		return 0, err
	}
	if mapped[0] < 0 {
		return 0, dnserr.New(dnserr.KindInternal, "offset %d not found while decompressing", target)
	}
	return mapped[0], nil
}
