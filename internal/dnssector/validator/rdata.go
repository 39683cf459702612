package validator

import (
	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// validateRdata enforces the per-type rdata shape the wire-format
// toolkit requires beyond "rdlen bytes exist": fixed-width records must
// be exactly that width, and name-bearing records must contain exactly
// one (or two, for SOA) well-formed name filling the declared length,
// with no slack bytes either side. It also reports whether any embedded
// rdata name contained a compression pointer, which feeds the packet's
// maybe-compressed flag the same way owner names do.
func validateRdata(buf []byte, rdataStart, rdlen int, rrtype wire.RRType, rrclass wire.RRClass, limits Limits) (compressed bool, err error) {
	switch rrtype {
	case wire.RRTypeA:
		if rdlen != 4 {
			return false, dnserr.New(dnserr.KindInvalidPacket, "A record rdlen must be 4, got %d", rdlen)
		}

	case wire.RRTypeAAAA:
		if rdlen != 16 {
			return false, dnserr.New(dnserr.KindInvalidPacket, "AAAA record rdlen must be 16, got %d", rdlen)
		}

	case wire.RRTypeNS, wire.RRTypeCNAME, wire.RRTypePTR:
		end, c, err := names.CheckCompressedNameCompression(buf, rdataStart, limits.MaxIndirections)
		if err != nil {
			return false, err
		}
		if end-rdataStart != rdlen {
			return false, dnserr.New(dnserr.KindInvalidPacket, "%s rdata does not exactly fill rdlen", rrtype)
		}
		compressed = c

	case wire.RRTypeMX:
		if rdlen < 3 {
			return false, dnserr.New(dnserr.KindInvalidPacket, "MX rdlen too small for preference + name")
		}
		end, c, err := names.CheckCompressedNameCompression(buf, rdataStart+2, limits.MaxIndirections)
		if err != nil {
			return false, err
		}
		if end-rdataStart != rdlen {
			return false, dnserr.New(dnserr.KindInvalidPacket, "MX rdata does not exactly fill rdlen")
		}
		compressed = c

	case wire.RRTypeSOA:
		end1, c1, err := names.CheckCompressedNameCompression(buf, rdataStart, limits.MaxIndirections)
		if err != nil {
			return false, err
		}
		end2, c2, err := names.CheckCompressedNameCompression(buf, end1, limits.MaxIndirections)
		if err != nil {
			return false, err
		}
		if end2+20-rdataStart != rdlen {
			return false, dnserr.New(dnserr.KindInvalidPacket, "SOA rdata does not exactly fill rdlen")
		}
		compressed = c1 || c2

	case wire.RRTypeDNAME:
		if rdataStart+rdlen > len(buf) {
			return false, dnserr.New(dnserr.KindInvalidPacket, "truncated DNAME rdata")
		}
		l, err := names.RawNameLen(buf[rdataStart : rdataStart+rdlen])
		if err != nil {
			return false, err
		}
		if l != rdlen {
			return false, dnserr.New(dnserr.KindInvalidPacket, "DNAME rdata does not exactly fill rdlen")
		}

	default:
		// Opaque rdata: the caller already bounds-checked rdlen against
		// the buffer; there's nothing type-specific left to enforce.
	}
	return compressed, nil
}
