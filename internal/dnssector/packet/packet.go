// Package packet owns the validated message buffer: header and section
// bookkeeping, record insertion and deletion with offset fix-up, and
// the decompress-on-write discipline that keeps every edit a pure byte
// splice. It is the only package that mutates a message's bytes
// directly; the cursor package drives those mutations through the
// exported low-level API at the bottom of this file.
package packet

import (
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/dnslog"
	"github.com/haukened/dnssector/internal/dnssector/rrtext"
	"github.com/haukened/dnssector/internal/dnssector/validator"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// Limits bounds the operations a Packet performs, mirroring dnscfg.Limits.
type Limits struct {
	MaxIndirections     int
	MaxUncompressedSize int
}

func (l Limits) toValidator() validator.Limits {
	return validator.Limits{MaxIndirections: l.MaxIndirections, MaxUncompressedSize: l.MaxUncompressedSize}
}

// QuestionInfo is the cached {name, qtype, qclass} triple for a message's
// single question, already lowercased.
type QuestionInfo struct {
	Name   string
	QType  wire.RRType
	QClass wire.RRClass
}

// Packet owns a validated DNS message buffer and every cached offset
// derived from it. Exactly one Packet owns a given buffer at a time;
// a Cursor borrows a Packet for its lifetime and only one Cursor may
// be live at once (enforced by convention, as in the source this
// toolkit is modeled on).
type Packet struct {
	buf      []byte
	offsets  validator.Offsets
	edns     validator.Edns
	question *validator.Question

	qdcount, ancount, nscount, arcount uint16
	maybeCompressed                    bool

	limits Limits
	logger dnslog.Logger
}

// Parse validates buf and returns a Packet that owns it. buf is taken
// by reference, not copied: the caller must not retain or mutate it
// afterward.
func Parse(buf []byte, limits Limits, logger dnslog.Logger) (*Packet, error) {
	if logger == nil {
		logger = dnslog.NewNoopLogger()
	}
	res, err := validator.Validate(buf, limits.toValidator(), logger)
	if err != nil {
		return nil, err
	}
	return fromResult(buf, res, limits, logger), nil
}

func fromResult(buf []byte, res *validator.Result, limits Limits, logger dnslog.Logger) *Packet {
	return &Packet{
		buf: buf, offsets: res.Offsets, edns: res.Edns, question: res.Question,
		qdcount: res.QDCount, ancount: res.ANCount, nscount: res.NSCount, arcount: res.ARCount,
		maybeCompressed: res.MaybeCompressed, limits: limits, logger: logger,
	}
}

// Empty returns a synthetic 12-byte message with transaction id tid,
// RD set, QR clear, and every count zero — the starting point for
// building a query from scratch, mirroring the original library's
// ParsedPacket::empty().
func Empty(tid uint16, limits Limits, logger dnslog.Logger) *Packet {
	if logger == nil {
		logger = dnslog.NewNoopLogger()
	}
	buf := make([]byte, wire.HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], tid)
	binary.BigEndian.PutUint16(buf[2:4], uint16(wire.FlagRD))
	p := &Packet{
		buf:     buf,
		offsets: validator.Offsets{Question: -1, Answer: -1, NameServers: -1, Additional: -1, Edns: -1},
		limits:  limits, logger: logger,
	}
	return p
}

// NewQuery builds a single-question query packet from scratch: Empty()
// plus one InsertRR into the Question section, mirroring synth::gen::query().
func NewQuery(name string, qtype wire.RRType, qclass wire.RRClass, tid uint16, limits Limits, logger dnslog.Logger) (*Packet, error) {
	p := Empty(tid, limits, logger)
	rr, err := rrtext.BuildQuestion(name, qtype, qclass)
	if err != nil {
		return nil, err
	}
	if err := p.InsertRR(wire.Question, rr); err != nil {
		return nil, err
	}
	return p, nil
}

// IntoBytes surrenders the owned buffer back to the caller. The Packet
// should not be used afterward.
func (p *Packet) IntoBytes() []byte {
	return p.buf
}

// Len returns the current buffer length.
func (p *Packet) Len() int {
	return len(p.buf)
}

// Question returns the cached question, if the message has one.
func (p *Packet) Question() (QuestionInfo, bool) {
	if p.question == nil {
		return QuestionInfo{}, false
	}
	return QuestionInfo{Name: p.question.Name, QType: p.question.QType, QClass: p.question.QClass}, true
}

// Dnssec is an alias of DNSSEC kept for callers following the original
// library's lowercase method naming; both read the same bit.
func (p *Packet) Dnssec() bool { return p.DNSSEC() }

// sectionOrder lists sections in on-wire precedence, used to find the
// next populated section when computing an insertion offset.
var sectionOrder = []wire.Section{wire.Question, wire.Answer, wire.NameServers, wire.Additional}

// SectionOffset returns the cached absolute offset of a section's first
// record, or false if the section is empty. Edns is looked up via the
// cached OPT record offset, not part of sectionOrder since it isn't a
// counted section.
func (p *Packet) SectionOffset(s wire.Section) (int, bool) {
	var off int
	switch s {
	case wire.Question:
		off = p.offsets.Question
	case wire.Answer:
		off = p.offsets.Answer
	case wire.NameServers:
		off = p.offsets.NameServers
	case wire.Additional:
		off = p.offsets.Additional
	case wire.Edns:
		off = p.offsets.Edns
	}
	if off < 0 {
		return 0, false
	}
	return off, true
}

// SectionCount returns the on-wire record count for a section.
func (p *Packet) SectionCount(s wire.Section) uint16 {
	switch s {
	case wire.Question:
		return p.qdcount
	case wire.Answer:
		return p.ancount
	case wire.NameServers:
		return p.nscount
	case wire.Additional:
		return p.arcount
	default:
		return 0
	}
}

// Buffer exposes the raw message bytes for read-only cursor access.
// Mutating it directly bypasses offset bookkeeping; use Splice/DeleteRecord.
func (p *Packet) Buffer() []byte { return p.buf }

// MaybeCompressed reports whether any name in the buffer might still
// contain a compression pointer.
func (p *Packet) MaybeCompressed() bool { return p.maybeCompressed }

// Limits returns the bounds this Packet enforces.
func (p *Packet) Limits() Limits { return p.limits }

// Logger returns the logger this Packet was constructed with.
func (p *Packet) Logger() dnslog.Logger { return p.logger }

// EdnsInfo returns the cached OPT-derived metadata.
func (p *Packet) EdnsInfo() validator.Edns { return p.edns }

// RRCountInc increments a section's on-wire count, enforcing qdcount <= 1.
func (p *Packet) RRCountInc(s wire.Section) error {
	switch s {
	case wire.Question:
		if p.qdcount >= 1 {
			return dnserr.New(dnserr.KindInvalidPacket, "message already has a question")
		}
		p.qdcount++
		binary.BigEndian.PutUint16(p.buf[4:6], p.qdcount)
	case wire.Answer:
		p.ancount++
		binary.BigEndian.PutUint16(p.buf[6:8], p.ancount)
	case wire.NameServers:
		p.nscount++
		binary.BigEndian.PutUint16(p.buf[8:10], p.nscount)
	case wire.Additional:
		p.arcount++
		binary.BigEndian.PutUint16(p.buf[10:12], p.arcount)
	}
	return nil
}

// RRCountDec decrements a section's on-wire count.
func (p *Packet) RRCountDec(s wire.Section) {
	switch s {
	case wire.Question:
		if p.qdcount > 0 {
			p.qdcount--
		}
		binary.BigEndian.PutUint16(p.buf[4:6], p.qdcount)
	case wire.Answer:
		if p.ancount > 0 {
			p.ancount--
		}
		binary.BigEndian.PutUint16(p.buf[6:8], p.ancount)
	case wire.NameServers:
		if p.nscount > 0 {
			p.nscount--
		}
		binary.BigEndian.PutUint16(p.buf[8:10], p.nscount)
	case wire.Additional:
		if p.arcount > 0 {
			p.arcount--
		}
		binary.BigEndian.PutUint16(p.buf[10:12], p.arcount)
	}
}

func (p *Packet) setSectionOffset(s wire.Section, off int) {
	switch s {
	case wire.Question:
		p.offsets.Question = off
	case wire.Answer:
		p.offsets.Answer = off
	case wire.NameServers:
		p.offsets.NameServers = off
	case wire.Additional:
		p.offsets.Additional = off
	case wire.Edns:
		p.offsets.Edns = off
	}
}

// Splice is the one place a Packet's buffer is ever rewritten in place.
// It replaces buf[at:at+removeLen] with insert, then applies the
// derived-cache discipline: every cached section offset at or beyond
// at+removeLen shifts by len(insert)-removeLen. Offsets inside the
// replaced span, and the span's own section if it started there, are
// the caller's responsibility (InsertRR/DeleteRecord/resize helpers).
func (p *Packet) Splice(at, removeLen int, insert []byte) error {
	shift := len(insert) - removeLen
	newLen := len(p.buf) + shift
	if newLen > p.limits.MaxUncompressedSize {
		return dnserr.New(dnserr.KindPacketTooLarge, "resize would exceed %d bytes", p.limits.MaxUncompressedSize)
	}
	newBuf := make([]byte, 0, newLen)
	newBuf = append(newBuf, p.buf[:at]...)
	newBuf = append(newBuf, insert...)
	newBuf = append(newBuf, p.buf[at+removeLen:]...)
	p.buf = newBuf

	threshold := at + removeLen
	for _, s := range []wire.Section{wire.Question, wire.Answer, wire.NameServers, wire.Additional, wire.Edns} {
		off, ok := p.SectionOffset(s)
		if ok && off >= threshold {
			p.setSectionOffset(s, off+shift)
		}
	}
	if p.edns.Present && p.edns.RdataStart >= threshold {
		p.edns.RdataStart += shift
	}
	return nil
}

// InsertRR inserts a fully-formed raw record (name + fixed header +
// rdata, or name + question header for the Question section) at the
// end of section, decompressing first if any name in the buffer might
// still be a pointer.
func (p *Packet) InsertRR(section wire.Section, rr []byte) error {
	if p.maybeCompressed {
		if err := p.DecompressInPlace(); err != nil {
			return err
		}
	}
	if len(p.buf)+len(rr) > p.limits.MaxUncompressedSize {
		return dnserr.New(dnserr.KindPacketTooLarge, "insert would exceed %d bytes", p.limits.MaxUncompressedSize)
	}

	at := p.insertionOffset(section)
	wasEmpty := false
	if _, ok := p.SectionOffset(section); !ok {
		wasEmpty = true
	}
	if err := p.Splice(at, 0, rr); err != nil {
		return err
	}
	if wasEmpty {
		p.setSectionOffset(section, at)
	}
	if err := p.RRCountInc(section); err != nil {
		return err
	}
	if section == wire.Question {
		// The question triple is a cached field; a fresh question has to
		// repopulate it, and the only source of truth is the validator.
		if err := p.Recompute(); err != nil {
			return err
		}
	}
	p.logger.Debug(map[string]any{"section": section.String(), "offset": at, "len": len(rr)}, "inserted resource record")
	return nil
}

// InsertRRFromString tokenizes one presentation-format RR line
// ("<name> <ttl> IN <type> <rdata>") and inserts the resulting record
// at the end of section. For the Question section only the name and
// type are used, since a question carries neither TTL nor rdata.
func (p *Packet) InsertRRFromString(section wire.Section, line string) error {
	name, ttl, rrtype, rdataText, err := rrtext.ParseRRLine(line)
	if err != nil {
		return err
	}
	var rr []byte
	if section == wire.Question {
		rr, err = rrtext.BuildQuestion(name, rrtype, wire.RRClassIN)
	} else {
		rr, err = rrtext.BuildRR(name, ttl, rrtype, wire.RRClassIN, rdataText)
	}
	if err != nil {
		return err
	}
	return p.InsertRR(section, rr)
}

// insertionOffset finds where a new record appended to section should
// land: the first cached offset of a later section, or the buffer end.
func (p *Packet) insertionOffset(section wire.Section) int {
	idx := 0
	for i, s := range sectionOrder {
		if s == section {
			idx = i
			break
		}
	}
	for _, s := range sectionOrder[idx+1:] {
		if off, ok := p.SectionOffset(s); ok {
			return off
		}
	}
	return len(p.buf)
}

// DeleteRecord removes the byte span [recordStart, recordStart+span) —
// the full on-wire extent of one record — from section, decrementing
// its count and clearing the section's cached offset if it becomes empty.
func (p *Packet) DeleteRecord(section wire.Section, recordStart, span int) error {
	wasOPT := p.edns.Present && p.offsets.Edns == recordStart
	if err := p.Splice(recordStart, span, nil); err != nil {
		return err
	}
	p.RRCountDec(section)
	if p.SectionCount(section) == 0 {
		p.setSectionOffset(section, -1)
	}
	if wasOPT {
		p.offsets.Edns = -1
		p.edns = validator.Edns{}
	}
	return nil
}

// Recompute re-runs the validator over the current buffer and
// reinstalls fresh offsets and EDNS metadata. It is used after any
// operation whose edits were non-local (rename) or that already
// produced a fully decompressed buffer.
func (p *Packet) Recompute() error {
	res, err := validator.Validate(p.buf, p.limits.toValidator(), p.logger)
	if err != nil {
		return err
	}
	prevEdns := p.edns
	p.offsets = res.Offsets
	p.edns = res.Edns
	p.question = res.Question
	p.qdcount, p.ancount, p.nscount, p.arcount = res.QDCount, res.ANCount, res.NSCount, res.ARCount
	p.maybeCompressed = res.MaybeCompressed
	if prevEdns.Present != p.edns.Present {
		p.logger.Warn(map[string]any{}, "EDNS presence changed across recompute")
	}
	return nil
}
