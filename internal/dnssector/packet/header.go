package packet

import (
	"encoding/binary"

	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// TID returns the 16-bit transaction id.
func (p *Packet) TID() uint16 {
	return binary.BigEndian.Uint16(p.buf[0:2])
}

// SetTID overwrites the transaction id.
func (p *Packet) SetTID(id uint16) {
	binary.BigEndian.PutUint16(p.buf[0:2], id)
}

func (p *Packet) rawFlags() uint16 {
	return binary.BigEndian.Uint16(p.buf[2:4])
}

func (p *Packet) setRawFlags(f uint16) {
	binary.BigEndian.PutUint16(p.buf[2:4], f)
}

// QR reports whether the QR bit (query=false, response=true) is set.
func (p *Packet) QR() bool {
	return p.rawFlags()&uint16(wire.FlagQR) != 0
}

// SetResponse sets or clears the QR bit.
func (p *Packet) SetResponse(v bool) {
	f := p.rawFlags()
	if v {
		f |= uint16(wire.FlagQR)
	} else {
		f &^= uint16(wire.FlagQR)
	}
	p.setRawFlags(f)
}

const (
	opcodeMask uint16 = 0x0F << 11
	rcodeMask  uint16 = 0x000F
)

// RCode returns the low 4 bits of the flags word.
func (p *Packet) RCode() wire.RCode {
	return wire.RCode(p.rawFlags() & rcodeMask)
}

// SetRCode overwrites the low 4 bits of the flags word.
func (p *Packet) SetRCode(r wire.RCode) {
	f := p.rawFlags()
	f = (f &^ rcodeMask) | (uint16(r) & rcodeMask)
	p.setRawFlags(f)
}

// Opcode returns bits 11-14 of the flags word.
func (p *Packet) Opcode() wire.Opcode {
	return wire.Opcode((p.rawFlags() & opcodeMask) >> 11)
}

// SetOpcode overwrites bits 11-14 of the flags word.
func (p *Packet) SetOpcode(o wire.Opcode) {
	f := p.rawFlags()
	f = (f &^ opcodeMask) | ((uint16(o) << 11) & opcodeMask)
	p.setRawFlags(f)
}

// Flags exposes 32 bits: the low 16 are the on-the-wire flags with
// opcode and rcode masked to zero (so a caller round-tripping Flags
// through SetFlags can't accidentally clobber them), and the high 16
// are the EDNS ext_flags shadow, zero when there's no OPT record.
func (p *Packet) Flags() uint32 {
	low := uint32(p.rawFlags()) &^ uint32(opcodeMask) &^ uint32(rcodeMask)
	var high uint32
	if p.edns.Present {
		high = uint32(p.edns.ExtFlags) << 16
	}
	return low | high
}

// SetFlags writes back the low 16 bits (opcode/rcode bits are ignored,
// preserving whatever SetOpcode/SetRCode last set) and, when an OPT
// record is present, the high 16 bits into its ext_flags field.
func (p *Packet) SetFlags(flags uint32) {
	cur := p.rawFlags()
	low := uint16(flags) &^ opcodeMask &^ rcodeMask
	p.setRawFlags(low | (cur & opcodeMask) | (cur & rcodeMask))

	if p.edns.Present {
		ext := uint16(flags >> 16)
		off := p.offsets.Edns + 1 + wire.RRTTLOffset // +1 skips the root-name zero byte
		ttl := binary.BigEndian.Uint32(p.buf[off : off+4])
		ttl = (ttl &^ 0x0000FFFF) | uint32(ext)
		binary.BigEndian.PutUint32(p.buf[off:off+4], ttl)
		p.edns.ExtFlags = ext
	}
}

// DNSSEC reports the security-aware bit for this message: the DO bit
// (from EDNS ext_flags) on a query, the AD bit on a response.
func (p *Packet) DNSSEC() bool {
	if p.QR() {
		return p.rawFlags()&uint16(wire.FlagAD) != 0
	}
	if p.edns.Present {
		return p.edns.ExtFlags&0x8000 != 0
	}
	return false
}
