package packet

import (
	"bytes"
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// RenameWithRawNames rebuilds the whole message, replacing every
// occurrence of source with target in every owner name and, for
// NS/CNAME/PTR/MX/SOA/DNAME, every embedded rdata name (the DNAME
// target is re-emitted uncompressed, since its rdata may not contain a
// compression pointer). When matchSuffix is
// true, a name only changes if source aligns to one of its label
// boundaries; otherwise the entire name must equal source exactly.
// target and source are raw (wire-format) names, not presentation
// strings — see RenameWithNames for the presentation-form entry point.
func (p *Packet) RenameWithRawNames(target, source []byte, matchSuffix bool) error {
	if len(source) == 0 || len(target) == 0 {
		return dnserr.New(dnserr.KindInvalidName, "empty source or target")
	}

	var out bytes.Buffer
	out.Write(p.buf[:wire.HeaderSize])
	dict := names.NewSuffixDict()

	if p.question != nil {
		var scratch bytes.Buffer
		_, origEnd, err := names.CopyUncompressed(&scratch, p.buf, p.offsets.Question)
		if err != nil {
			return err
		}
		newName, _, err := replaceRaw(scratch.Bytes(), target, source, matchSuffix)
		if err != nil {
			return err
		}
		baseOffset := out.Len()
		if err := names.CopyCompressed(dict, &out, newName, baseOffset); err != nil {
			return err
		}
		dict.SetQuestionName(newName, baseOffset)
		out.Write(p.buf[origEnd : origEnd+wire.RRQuestionHeaderSize])
	}

	renameSection := func(start int, count uint16) error {
		pos := start
		for i := 0; i < int(count); i++ {
			var owner bytes.Buffer
			_, nameEnd, err := names.CopyUncompressed(&owner, p.buf, pos)
			if err != nil {
				return err
			}
			rrtype := wire.RRType(binary.BigEndian.Uint16(p.buf[nameEnd : nameEnd+2]))
			rrclass := binary.BigEndian.Uint16(p.buf[nameEnd+2 : nameEnd+4])
			ttl := binary.BigEndian.Uint32(p.buf[nameEnd+4 : nameEnd+8])
			rdlen := binary.BigEndian.Uint16(p.buf[nameEnd+8 : nameEnd+10])
			rdataStart := nameEnd + wire.RRHeaderSize
			rdataEnd := rdataStart + int(rdlen)

			newOwner, _, err := replaceRaw(owner.Bytes(), target, source, matchSuffix)
			if err != nil {
				return err
			}
			if err := names.CopyCompressed(dict, &out, newOwner, out.Len()); err != nil {
				return err
			}

			headerPos := out.Len()
			out.Write(make([]byte, wire.RRHeaderSize))
			rdataBegin := out.Len()

			switch rrtype {
			case wire.RRTypeNS, wire.RRTypeCNAME, wire.RRTypePTR:
				var rd bytes.Buffer
				if _, _, err := names.CopyUncompressed(&rd, p.buf, rdataStart); err != nil {
					return err
				}
				newRd, _, err := replaceRaw(rd.Bytes(), target, source, matchSuffix)
				if err != nil {
					return err
				}
				if err := names.CopyCompressed(dict, &out, newRd, out.Len()); err != nil {
					return err
				}

			case wire.RRTypeDNAME:
				// A DNAME target must stay a single uncompressed name, so
				// it bypasses the suffix dictionary entirely.
				var rd bytes.Buffer
				if _, _, err := names.CopyUncompressed(&rd, p.buf, rdataStart); err != nil {
					return err
				}
				newRd, _, err := replaceRaw(rd.Bytes(), target, source, matchSuffix)
				if err != nil {
					return err
				}
				out.Write(newRd)

			case wire.RRTypeMX:
				out.Write(p.buf[rdataStart : rdataStart+2])
				var rd bytes.Buffer
				if _, _, err := names.CopyUncompressed(&rd, p.buf, rdataStart+2); err != nil {
					return err
				}
				newRd, _, err := replaceRaw(rd.Bytes(), target, source, matchSuffix)
				if err != nil {
					return err
				}
				if err := names.CopyCompressed(dict, &out, newRd, out.Len()); err != nil {
					return err
				}

			case wire.RRTypeSOA:
				var rd1, rd2 bytes.Buffer
				_, mid, err := names.CopyUncompressed(&rd1, p.buf, rdataStart)
				if err != nil {
					return err
				}
				_, end2, err := names.CopyUncompressed(&rd2, p.buf, mid)
				if err != nil {
					return err
				}
				newNS, _, err := replaceRaw(rd1.Bytes(), target, source, matchSuffix)
				if err != nil {
					return err
				}
				if err := names.CopyCompressed(dict, &out, newNS, out.Len()); err != nil {
					return err
				}
				newContact, _, err := replaceRaw(rd2.Bytes(), target, source, matchSuffix)
				if err != nil {
					return err
				}
				if err := names.CopyCompressed(dict, &out, newContact, out.Len()); err != nil {
					return err
				}
				out.Write(p.buf[end2 : end2+20])

			default:
				// Includes OPT: its rdata is a flat EDNS option stream with
				// no embedded names, so it passes through byte-for-byte.
				out.Write(p.buf[rdataStart:rdataEnd])
			}

			newRdlen := out.Len() - rdataBegin
			var hdr [wire.RRHeaderSize]byte
			binary.BigEndian.PutUint16(hdr[0:2], uint16(rrtype))
			binary.BigEndian.PutUint16(hdr[2:4], rrclass)
			binary.BigEndian.PutUint32(hdr[4:8], ttl)
			binary.BigEndian.PutUint16(hdr[8:10], uint16(newRdlen))
			copy(out.Bytes()[headerPos:headerPos+wire.RRHeaderSize], hdr[:])

			pos = rdataEnd
		}
		return nil
	}

	if off, ok := p.SectionOffset(wire.Answer); ok {
		if err := renameSection(off, p.ancount); err != nil {
			return err
		}
	}
	if off, ok := p.SectionOffset(wire.NameServers); ok {
		if err := renameSection(off, p.nscount); err != nil {
			return err
		}
	}
	if off, ok := p.SectionOffset(wire.Additional); ok {
		if err := renameSection(off, p.arcount); err != nil {
			return err
		}
	}

	if out.Len() > p.limits.MaxUncompressedSize {
		return dnserr.New(dnserr.KindPacketTooLarge, "rename would exceed %d bytes", p.limits.MaxUncompressedSize)
	}

	p.buf = out.Bytes()
	p.maybeCompressed = true
	return p.Recompute()
}

// Compress rebuilds the message through the suffix dictionary without
// changing any name: a rename of the root suffix to itself matches
// every name at its terminal label and rewrites it unchanged, so the
// only effect is that shared suffixes collapse back into pointers.
func (p *Packet) Compress() error {
	root := []byte{0}
	return p.RenameWithRawNames(root, root, true)
}

// RenameWithNames is RenameWithRawNames for presentation-form names.
func (p *Packet) RenameWithNames(target, source string, matchSuffix bool) error {
	rawTarget, err := names.FromString(target, nil)
	if err != nil {
		return err
	}
	rawSource, err := names.FromString(source, nil)
	if err != nil {
		return err
	}
	return p.RenameWithRawNames(rawTarget, rawSource, matchSuffix)
}

// replaceRaw implements the suffix-replace rule: without matchSuffix,
// name must equal source exactly; with it, source must align to a
// label boundary of name. On a match it returns name[:prefix]++target;
// otherwise it returns name unchanged with changed=false.
func replaceRaw(name, target, source []byte, matchSuffix bool) (result []byte, changed bool, err error) {
	if !matchSuffix {
		if len(name) != len(source) || !bytes.EqualFold(name, source) {
			return name, false, nil
		}
		if len(target) > wire.MaxHostnameLen {
			return nil, false, dnserr.New(dnserr.KindInvalidName, "renamed name too long")
		}
		return target, true, nil
	}

	if len(name) < len(source) {
		return name, false, nil
	}
	prefixLen := len(name) - len(source)
	if !bytes.EqualFold(name[prefixLen:], source) {
		return name, false, nil
	}
	if !alignsToLabelBoundary(name, prefixLen) {
		return name, false, nil
	}

	out := make([]byte, 0, prefixLen+len(target))
	out = append(out, name[:prefixLen]...)
	out = append(out, target...)
	if len(out) > wire.MaxHostnameLen {
		return nil, false, dnserr.New(dnserr.KindInvalidName, "renamed name too long")
	}
	return out, true, nil
}

// alignsToLabelBoundary reports whether offset falls exactly on a label
// start (or the very end of name), rejecting a suffix match that would
// split a label in two.
func alignsToLabelBoundary(name []byte, offset int) bool {
	if offset == 0 || offset == len(name) {
		return true
	}
	pos := 0
	for pos < len(name) {
		if pos == offset {
			return true
		}
		if pos > offset {
			return false
		}
		l := int(name[pos])
		if l == 0 {
			return false
		}
		pos += 1 + l
	}
	return false
}
