package cursor

import (
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/packet"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// EdnsCursor is a read-only, move-on-advance iterator over the options
// packed into a message's single OPT record. Unlike Cursor it never
// mutates the packet: EDNS options are a flat TLV stream, and rewriting
// one in place would mean resizing rdata the same way a name resize
// does, which this toolkit doesn't need for the option set it supports.
type EdnsCursor struct {
	buf     []byte
	pos     int
	end     int
	code    wire.EdnsOption
	value   []byte
	started bool
	done    bool
}

// NewEdns returns an iterator over pkt's EDNS options, or ok=false if
// the message carries no OPT record.
func NewEdns(pkt *packet.Packet) (*EdnsCursor, bool) {
	info := pkt.EdnsInfo()
	if !info.Present {
		return nil, false
	}
	return &EdnsCursor{
		buf: pkt.Buffer(),
		pos: info.RdataStart,
		end: info.RdataStart + info.RdataLen,
	}, true
}

// Next advances to the next option, returning false once the rdata
// window is exhausted.
func (e *EdnsCursor) Next() (bool, error) {
	if e.done || e.pos >= e.end {
		e.done = true
		return false, nil
	}
	if e.pos+wire.EdnsRRHeaderSize > e.end {
		return false, dnserr.New(dnserr.KindInvalidPacket, "truncated EDNS option header")
	}
	code := wire.EdnsOption(binary.BigEndian.Uint16(e.buf[e.pos+wire.EdnsRRCodeOffset : e.pos+wire.EdnsRRCodeOffset+2]))
	optLen := binary.BigEndian.Uint16(e.buf[e.pos+wire.EdnsRRLenOffset : e.pos+wire.EdnsRRLenOffset+2])
	valueStart := e.pos + wire.EdnsRRHeaderSize
	valueEnd := valueStart + int(optLen)
	if valueEnd > e.end {
		return false, dnserr.New(dnserr.KindInvalidPacket, "truncated EDNS option value")
	}
	e.code = code
	e.value = e.buf[valueStart:valueEnd]
	e.pos = valueEnd
	e.started = true
	return true, nil
}

// Code returns the current option's code.
func (e *EdnsCursor) Code() (wire.EdnsOption, error) {
	if !e.started {
		return 0, dnserr.New(dnserr.KindPropertyNotFound, "cursor has not been advanced yet")
	}
	return e.code, nil
}

// Value returns the current option's raw value bytes, a view into the
// packet's own buffer.
func (e *EdnsCursor) Value() []byte {
	return e.value
}
