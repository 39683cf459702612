// Package validator performs the one-shot validating walk over an
// untrusted DNS message: it never panics on malformed input, and on
// success produces the cached section offsets and EDNS metadata the
// packet package needs to avoid re-walking the buffer on every access.
package validator

import (
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/dnslog"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
	"go.uber.org/multierr"
)

// Question caches the single question record, avoiding a re-walk.
type Question struct {
	Name       string
	NameOffset int
	QType      wire.RRType
	QClass     wire.RRClass
}

// Offsets holds the absolute byte offset of the first record of every
// section, or -1 if the section is empty. They are strictly increasing
// across sections whenever more than one is populated.
type Offsets struct {
	Question    int
	Answer      int
	NameServers int
	Additional  int
	Edns        int
}

// Edns caches the fields recovered from the single OPT record, when present.
type Edns struct {
	Present    bool
	Count      int
	ExtRCode   uint8
	Version    uint8
	ExtFlags   uint16
	MaxPayload uint16
	// RdataStart/RdataLen bound the EDNS option TLV stream inside OPT rdata.
	RdataStart int
	RdataLen   int
}

// Result is everything Validate produces from a successful walk.
type Result struct {
	Offsets         Offsets
	Question        *Question
	Edns            Edns
	QDCount         uint16
	ANCount         uint16
	NSCount         uint16
	ARCount         uint16
	MaybeCompressed bool
}

// Limits bounds the walk; callers typically pass dnscfg.Limits fields in.
type Limits struct {
	MaxIndirections     int
	MaxUncompressedSize int
}

// Validate runs the single forward pass described by the wire-format
// toolkit's validator: reject malformed structure, and on success
// return the section offsets and EDNS metadata needed by the packet
// layer. It never reads past len(buf), and it stops at the first
// failure.
func Validate(buf []byte, limits Limits, logger dnslog.Logger) (*Result, error) {
	return validate(buf, limits, logger, false)
}

// ValidateAll is the best-effort variant behind diagnostic tooling:
// instead of stopping at the first failure it keeps walking wherever
// the record framing survives — a wrong rdata shape, an OPT rule
// violation, or a non-IN question class still leaves the next record
// boundary computable — and aggregates everything it finds with
// multierr. A failure that destroys the framing (a truncated name,
// header, or rdata) still ends the walk, since nothing past it can be
// located.
func ValidateAll(buf []byte, limits Limits, logger dnslog.Logger) (*Result, error) {
	return validate(buf, limits, logger, true)
}

func validate(buf []byte, limits Limits, logger dnslog.Logger, collect bool) (*Result, error) {
	if logger == nil {
		logger = dnslog.NewNoopLogger()
	}

	var errs error
	// report records a recoverable failure: fail-fast mode propagates it
	// immediately, collect mode saves it and lets the walk continue.
	report := func(e error) error {
		if !collect {
			return e
		}
		errs = multierr.Append(errs, e)
		return nil
	}
	// abort ends the walk on a framing-destroying failure, bundling in
	// whatever was collected before it.
	abort := func(e error) error {
		if collect {
			return multierr.Append(errs, e)
		}
		return e
	}

	if len(buf) < wire.HeaderSize {
		return nil, abort(dnserr.New(dnserr.KindPacketTooSmall, "buffer shorter than the 12-byte header"))
	}
	if len(buf) > 65535 {
		return nil, abort(dnserr.New(dnserr.KindPacketTooLarge, "buffer exceeds 65535 bytes"))
	}

	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])
	nscount := binary.BigEndian.Uint16(buf[8:10])
	arcount := binary.BigEndian.Uint16(buf[10:12])

	if qdcount > 1 {
		// The walk can still proceed as if there were exactly one
		// question; the extras surface as framing errors in the sections
		// that follow.
		if e := report(dnserr.New(dnserr.KindInvalidPacket, "more than one question")); e != nil {
			return nil, e
		}
	}

	flags := binary.BigEndian.Uint16(buf[2:4])
	isResponse := flags&uint16(wire.FlagQR) != 0
	if !isResponse && (ancount > 0 || nscount > 0 || arcount > 0) {
		if e := report(dnserr.New(dnserr.KindInvalidPacket, "non-response message carries answer/authority/additional records")); e != nil {
			return nil, e
		}
	}

	res := &Result{
		Offsets: Offsets{Question: -1, Answer: -1, NameServers: -1, Additional: -1, Edns: -1},
		QDCount: qdcount, ANCount: ancount, NSCount: nscount, ARCount: arcount,
	}

	pos := wire.HeaderSize
	maybeCompressed := false

	if qdcount >= 1 {
		res.Offsets.Question = pos
		nameStart := pos
		endOffset, compressed, err := names.CheckCompressedNameCompression(buf, pos, limits.MaxIndirections)
		if err != nil {
			return nil, abort(err)
		}
		if compressed {
			maybeCompressed = true
		}
		pos = endOffset
		if pos+wire.RRQuestionHeaderSize > len(buf) {
			return nil, abort(dnserr.New(dnserr.KindInvalidPacket, "truncated question"))
		}
		qtype := wire.RRType(binary.BigEndian.Uint16(buf[pos : pos+2]))
		qclass := wire.RRClass(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))
		if qclass != wire.RRClassIN {
			if e := report(dnserr.New(dnserr.KindInvalidPacket, "question class is not IN")); e != nil {
				return nil, e
			}
		}
		name, err := names.ToString(buf, nameStart, limits.MaxIndirections)
		if err != nil {
			return nil, abort(err)
		}
		res.Question = &Question{Name: name, NameOffset: nameStart, QType: qtype, QClass: qclass}
		pos += wire.RRQuestionHeaderSize
	}

	edns := Edns{}
	sawOPT := false

	walkSection := func(section wire.Section, count uint16, allowOPT bool) error {
		if count == 0 {
			return nil
		}
		sectionStart := pos
		for i := 0; i < int(count); i++ {
			recordStart := pos
			endOffset, compressed, err := names.CheckCompressedNameCompression(buf, pos, limits.MaxIndirections)
			if err != nil {
				return err
			}
			if compressed {
				maybeCompressed = true
			}
			pos = endOffset
			if pos+wire.RRHeaderSize > len(buf) {
				return dnserr.New(dnserr.KindInvalidPacket, "truncated record header")
			}
			rrtype := wire.RRType(binary.BigEndian.Uint16(buf[pos+wire.RRTypeOffset : pos+wire.RRTypeOffset+2]))
			rrclass := wire.RRClass(binary.BigEndian.Uint16(buf[pos+wire.RRClassOffset : pos+wire.RRClassOffset+2]))
			rdlen := binary.BigEndian.Uint16(buf[pos+wire.RRRdlenOffset : pos+wire.RRRdlenOffset+2])
			pos += wire.RRHeaderSize
			if pos+int(rdlen) > len(buf) {
				return dnserr.New(dnserr.KindInvalidPacket, "truncated rdata")
			}

			if rrtype == wire.RRTypeOPT {
				// An OPT violating a placement rule is reported and then
				// skipped as opaque bytes; one with a bad owner name or
				// option stream still has usable framing, so its
				// remaining fields keep being checked.
				skipOPT := false
				if !allowOPT {
					if e := report(dnserr.New(dnserr.KindInvalidPacket, "OPT record outside Additional")); e != nil {
						return e
					}
					skipOPT = true
				}
				if !skipOPT && sawOPT {
					if e := report(dnserr.New(dnserr.KindInvalidPacket, "duplicate OPT record")); e != nil {
						return e
					}
					skipOPT = true
				}
				if !skipOPT {
					if endOffset != recordStart+1 || buf[recordStart] != 0 {
						if e := report(dnserr.New(dnserr.KindInvalidPacket, "OPT owner name must be the root")); e != nil {
							return e
						}
					}
					sawOPT = true
					ttl := binary.BigEndian.Uint32(buf[pos-6 : pos-2])
					edns = Edns{
						Present:    true,
						MaxPayload: uint16(rrclass),
						ExtRCode:   uint8(ttl >> 24),
						Version:    uint8(ttl >> 16),
						ExtFlags:   uint16(ttl),
						RdataStart: pos,
						RdataLen:   int(rdlen),
					}
					n, err := validateEdnsOptions(buf[pos : pos+int(rdlen)])
					if err != nil {
						if e := report(err); e != nil {
							return e
						}
					} else {
						edns.Count = n
					}
					res.Offsets.Edns = recordStart
				}
			} else {
				compressed, err := validateRdata(buf, pos, int(rdlen), rrtype, rrclass, limits)
				if err != nil {
					if e := report(err); e != nil {
						return e
					}
				}
				if compressed {
					maybeCompressed = true
				}
			}
			pos += int(rdlen)
		}
		if section != wire.Edns {
			switch section {
			case wire.Answer:
				res.Offsets.Answer = sectionStart
			case wire.NameServers:
				res.Offsets.NameServers = sectionStart
			case wire.Additional:
				res.Offsets.Additional = sectionStart
			}
		}
		return nil
	}

	if err := walkSection(wire.Answer, ancount, false); err != nil {
		return nil, abort(err)
	}
	if err := walkSection(wire.NameServers, nscount, false); err != nil {
		return nil, abort(err)
	}
	if err := walkSection(wire.Additional, arcount, true); err != nil {
		return nil, abort(err)
	}

	if pos != len(buf) {
		if e := report(dnserr.New(dnserr.KindInvalidPacket, "trailing bytes after last expected record")); e != nil {
			return nil, e
		}
	}

	if errs != nil {
		return nil, errs
	}

	res.Edns = edns
	res.MaybeCompressed = maybeCompressed

	logger.Debug(map[string]any{
		"qdcount": qdcount, "ancount": ancount, "nscount": nscount, "arcount": arcount,
		"maybe_compressed": maybeCompressed, "edns": edns.Present,
	}, "validated DNS message")

	return res, nil
}

// validateEdnsOptions walks a tight sequence of {code:16, len:16,
// value:len} options that must exactly fill the given rdata window.
func validateEdnsOptions(rdata []byte) (count int, err error) {
	pos := 0
	for pos < len(rdata) {
		if pos+wire.EdnsRRHeaderSize > len(rdata) {
			return 0, dnserr.New(dnserr.KindInvalidPacket, "truncated EDNS option header")
		}
		optLen := binary.BigEndian.Uint16(rdata[pos+wire.EdnsRRLenOffset : pos+wire.EdnsRRLenOffset+2])
		pos += wire.EdnsRRHeaderSize
		if pos+int(optLen) > len(rdata) {
			return 0, dnserr.New(dnserr.KindInvalidPacket, "truncated EDNS option value")
		}
		pos += int(optLen)
		count++
	}
	if pos != len(rdata) {
		return 0, dnserr.New(dnserr.KindInvalidPacket, "EDNS options do not exactly fill rdata")
	}
	return count, nil
}
