// Package cursor implements the move-on-advance record iterator: a
// single live view over one Packet's Answer, NameServers, and
// Additional sections that reads and mutates records without ever
// re-walking the whole buffer, relying on Packet's decompress-on-write
// and splice bookkeeping for every resize.
package cursor

import (
	"bytes"
	"encoding/binary"
	"net"
	"strings"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/packet"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

type state uint8

const (
	stateUnstarted state = iota
	stateLive
	stateTombstone
	stateExhausted
)

// sectionOrder is the record-bearing section traversal order; the
// Question is a single cached field reached through Packet.Question,
// not part of this iteration.
var sectionOrder = []wire.Section{wire.Answer, wire.NameServers, wire.Additional}

// Cursor is a single borrowed view over a Packet's resource records.
// Only one Cursor should be live against a given Packet at a time: a
// mutation (SetRawName, Delete) can shift every byte after it, and a
// Cursor only tracks its own position through that shift, not anyone
// else's.
type Cursor struct {
	pkt *packet.Packet
	st  state

	sections     []wire.Section
	includeOPT   bool
	sectionIdx   int
	idxInSection int

	section     wire.Section
	recordStart int
	nameEnd     int
	rrtype      wire.RRType
	rrclass     wire.RRClass
	ttl         uint32
	rdlen       uint16
	rdataStart  int
	rdataEnd    int

	offsetNext int
}

// New returns a Cursor positioned before the first record of pkt that
// walks every record-bearing section, OPT included. Call Next to
// advance to the first record.
func New(pkt *packet.Packet) *Cursor {
	return &Cursor{pkt: pkt, st: stateUnstarted, sections: sectionOrder, includeOPT: true, sectionIdx: -1}
}

// NewSection returns a Cursor restricted to one of the record-bearing
// sections (Answer, NameServers, Additional). For the Additional
// section the OPT pseudo-record is skipped; use
// NewAdditionalIncludingOPT to see it. The question is a cached field
// reached through Packet.Question, and EDNS options through NewEdns;
// a cursor for either section exhausts immediately.
func NewSection(pkt *packet.Packet, section wire.Section) *Cursor {
	switch section {
	case wire.Answer, wire.NameServers, wire.Additional:
		return &Cursor{pkt: pkt, st: stateUnstarted, sections: []wire.Section{section}, sectionIdx: -1}
	default:
		return &Cursor{pkt: pkt, st: stateExhausted}
	}
}

// NewAdditionalIncludingOPT returns a Cursor over the Additional
// section that yields the OPT pseudo-record along with the plain ones.
func NewAdditionalIncludingOPT(pkt *packet.Packet) *Cursor {
	return &Cursor{pkt: pkt, st: stateUnstarted, sections: []wire.Section{wire.Additional}, includeOPT: true, sectionIdx: -1}
}

// Next advances to the next record, returning false once every section
// has been exhausted. It is always safe to call again after it returns
// false; it simply keeps returning false.
func (c *Cursor) Next() (bool, error) {
	if c.st == stateExhausted {
		return false, nil
	}

	var pos int
	switch c.st {
	case stateTombstone:
		pos = c.offsetNext
	case stateLive:
		pos = c.rdataEnd
	}

	for {
		for c.sectionIdx == -1 || c.idxInSection >= int(c.pkt.SectionCount(c.sections[c.sectionIdx])) {
			c.sectionIdx++
			c.idxInSection = 0
			if c.sectionIdx >= len(c.sections) {
				c.st = stateExhausted
				return false, nil
			}
			off, ok := c.pkt.SectionOffset(c.sections[c.sectionIdx])
			if !ok {
				continue
			}
			pos = off
		}

		if err := c.loadRecord(c.sections[c.sectionIdx], pos); err != nil {
			return false, err
		}
		c.idxInSection++
		if c.rrtype == wire.RRTypeOPT && !c.includeOPT {
			pos = c.rdataEnd
			continue
		}
		c.st = stateLive
		return true, nil
	}
}

func (c *Cursor) loadRecord(section wire.Section, pos int) error {
	buf := c.pkt.Buffer()
	nameEnd, _, err := names.CheckCompressedNameCompression(buf, pos, c.pkt.Limits().MaxIndirections)
	if err != nil {
		return err
	}
	if nameEnd+wire.RRHeaderSize > len(buf) {
		return dnserr.New(dnserr.KindInvalidPacket, "truncated record header")
	}
	rrtype := wire.RRType(binary.BigEndian.Uint16(buf[nameEnd : nameEnd+2]))
	rrclass := wire.RRClass(binary.BigEndian.Uint16(buf[nameEnd+2 : nameEnd+4]))
	ttl := binary.BigEndian.Uint32(buf[nameEnd+4 : nameEnd+8])
	rdlen := binary.BigEndian.Uint16(buf[nameEnd+8 : nameEnd+10])
	rdataStart := nameEnd + wire.RRHeaderSize
	rdataEnd := rdataStart + int(rdlen)
	if rdataEnd > len(buf) {
		return dnserr.New(dnserr.KindInvalidPacket, "truncated rdata")
	}

	c.section = section
	c.recordStart = pos
	c.nameEnd = nameEnd
	c.rrtype = rrtype
	c.rrclass = rrclass
	c.ttl = ttl
	c.rdlen = rdlen
	c.rdataStart = rdataStart
	c.rdataEnd = rdataEnd
	return nil
}

func (c *Cursor) ensureLive() error {
	switch c.st {
	case stateUnstarted:
		return dnserr.New(dnserr.KindPropertyNotFound, "cursor has not been advanced yet")
	case stateExhausted:
		return dnserr.New(dnserr.KindExhausted, "cursor is exhausted")
	case stateTombstone:
		return dnserr.New(dnserr.KindVoidRecord, "record was deleted")
	default:
		return nil
	}
}

// Section returns the section of the current record.
func (c *Cursor) Section() (wire.Section, error) {
	if err := c.ensureLive(); err != nil {
		return 0, err
	}
	return c.section, nil
}

// Name returns the current record's owner name in lowercased
// presentation form.
func (c *Cursor) Name() (string, error) {
	if err := c.ensureLive(); err != nil {
		return "", err
	}
	return names.ToString(c.pkt.Buffer(), c.recordStart, c.pkt.Limits().MaxIndirections)
}

// CopyRawName appends the current record's owner name, uncompressed, to dst.
func (c *Cursor) CopyRawName(dst *bytes.Buffer) error {
	if err := c.ensureLive(); err != nil {
		return err
	}
	_, _, err := names.CopyUncompressed(dst, c.pkt.Buffer(), c.recordStart)
	return err
}

// NameSlice returns the raw, possibly-compressed owner name bytes, a
// view into the packet's own buffer.
func (c *Cursor) NameSlice() ([]byte, error) {
	if err := c.ensureLive(); err != nil {
		return nil, err
	}
	return c.pkt.Buffer()[c.recordStart:c.nameEnd], nil
}

// RRType returns the current record's type.
func (c *Cursor) RRType() (wire.RRType, error) {
	if err := c.ensureLive(); err != nil {
		return 0, err
	}
	return c.rrtype, nil
}

// RRClass returns the current record's class.
func (c *Cursor) RRClass() (wire.RRClass, error) {
	if err := c.ensureLive(); err != nil {
		return 0, err
	}
	return c.rrclass, nil
}

// RRTTL returns the current record's TTL (or, for an OPT record, the
// raw 32-bit field aliasing ext_rcode/version/ext_flags).
func (c *Cursor) RRTTL() (uint32, error) {
	if err := c.ensureLive(); err != nil {
		return 0, err
	}
	return c.ttl, nil
}

// RRRdlen returns the current record's rdata length.
func (c *Cursor) RRRdlen() (uint16, error) {
	if err := c.ensureLive(); err != nil {
		return 0, err
	}
	return c.rdlen, nil
}

// RdataSlice returns the current record's raw rdata bytes, a view into
// the packet's own buffer.
func (c *Cursor) RdataSlice() ([]byte, error) {
	if err := c.ensureLive(); err != nil {
		return nil, err
	}
	return c.pkt.Buffer()[c.rdataStart:c.rdataEnd], nil
}

// RRIP returns the current record's address, for A and AAAA records only.
func (c *Cursor) RRIP() (net.IP, error) {
	if err := c.ensureLive(); err != nil {
		return nil, err
	}
	rdata := c.pkt.Buffer()[c.rdataStart:c.rdataEnd]
	switch c.rrtype {
	case wire.RRTypeA:
		if len(rdata) != 4 {
			return nil, dnserr.New(dnserr.KindWrongAddressFamily, "A record rdata is not 4 bytes")
		}
		return net.IPv4(rdata[0], rdata[1], rdata[2], rdata[3]), nil
	case wire.RRTypeAAAA:
		if len(rdata) != 16 {
			return nil, dnserr.New(dnserr.KindWrongAddressFamily, "AAAA record rdata is not 16 bytes")
		}
		ip := make(net.IP, 16)
		copy(ip, rdata)
		return ip, nil
	default:
		return nil, dnserr.New(dnserr.KindWrongAddressFamily, "RR type %s carries no address", c.rrtype)
	}
}

// RRTXT concatenates every character-string chunk of a TXT record's
// rdata into one string.
func (c *Cursor) RRTXT() (string, error) {
	if err := c.ensureLive(); err != nil {
		return "", err
	}
	if c.rrtype != wire.RRTypeTXT {
		return "", dnserr.New(dnserr.KindPropertyNotFound, "RR type %s is not TXT", c.rrtype)
	}
	rdata := c.pkt.Buffer()[c.rdataStart:c.rdataEnd]
	var sb strings.Builder
	pos := 0
	for pos < len(rdata) {
		l := int(rdata[pos])
		pos++
		if pos+l > len(rdata) {
			return "", dnserr.New(dnserr.KindParseError, "truncated TXT character-string")
		}
		sb.Write(rdata[pos : pos+l])
		pos += l
	}
	return sb.String(), nil
}

// SetRRTTL overwrites the current record's TTL in place; it never
// resizes the buffer.
func (c *Cursor) SetRRTTL(ttl uint32) error {
	if err := c.ensureLive(); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(c.pkt.Buffer()[c.nameEnd+4:c.nameEnd+8], ttl)
	c.ttl = ttl
	return nil
}

// SetRRIP overwrites an A or AAAA record's address in place. The
// address family of ip must match the record's type.
func (c *Cursor) SetRRIP(ip net.IP) error {
	if err := c.ensureLive(); err != nil {
		return err
	}
	switch c.rrtype {
	case wire.RRTypeA:
		v4 := ip.To4()
		if v4 == nil {
			return dnserr.New(dnserr.KindWrongAddressFamily, "not an IPv4 address")
		}
		copy(c.pkt.Buffer()[c.rdataStart:c.rdataStart+4], v4)
	case wire.RRTypeAAAA:
		if ip.To4() != nil {
			return dnserr.New(dnserr.KindWrongAddressFamily, "not an IPv6 address")
		}
		v6 := ip.To16()
		if v6 == nil {
			return dnserr.New(dnserr.KindWrongAddressFamily, "not an IPv6 address")
		}
		copy(c.pkt.Buffer()[c.rdataStart:c.rdataStart+16], v6)
	default:
		return dnserr.New(dnserr.KindWrongAddressFamily, "RR type %s carries no address", c.rrtype)
	}
	return nil
}

// SetRawName replaces the current record's owner name with newName (a
// raw, uncompressed name). If the packet might still contain
// compression pointers elsewhere, it is fully decompressed first so the
// splice's offset fix-up stays correct, and the cursor follows its own
// record to its new position before resizing.
func (c *Cursor) SetRawName(newName []byte) error {
	if err := c.ensureLive(); err != nil {
		return err
	}
	l, err := names.RawNameLen(newName)
	if err != nil {
		return err
	}
	if l != len(newName) {
		return dnserr.New(dnserr.KindInvalidName, "trailing bytes after name")
	}
	if l > wire.MaxHostnameLen {
		return dnserr.New(dnserr.KindInvalidName, "name too long")
	}

	if c.pkt.MaybeCompressed() {
		newStart, err := c.pkt.DecompressTrackingOffset(c.recordStart)
		if err != nil {
			return err
		}
		if err := c.loadRecord(c.section, newStart); err != nil {
			return err
		}
	}

	oldNameLen := c.nameEnd - c.recordStart
	if err := c.pkt.Splice(c.recordStart, oldNameLen, newName); err != nil {
		return err
	}
	return c.loadRecord(c.section, c.recordStart)
}

// Delete removes the current record from the packet. The cursor
// becomes a tombstone: every accessor fails until the next Next call,
// which resumes iteration right after the deleted record.
func (c *Cursor) Delete() error {
	if err := c.ensureLive(); err != nil {
		return err
	}
	span := c.rdataEnd - c.recordStart
	if err := c.pkt.DeleteRecord(c.section, c.recordStart, span); err != nil {
		return err
	}
	c.idxInSection--
	c.offsetNext = c.recordStart
	c.st = stateTombstone
	return nil
}
