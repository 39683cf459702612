// Package rrtext converts between the zone-file presentation format
// ("<name> <ttl> IN <type> <rdata>") and the raw wire-format records
// packet.InsertRR and packet.NewQuery expect, so callers building
// synthetic messages never have to hand-assemble rdata bytes.
package rrtext

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"strconv"
	"strings"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

// maxTXTPlain bounds how much decoded TXT text BuildRR accepts, mirroring
// the wire-format toolkit's own cap on a single uncompressed message.
const maxTXTPlain = wire.MaxUncompressedSize

// ParseRRLine splits a presentation-format resource record line into
// its five fields. class must be "IN" and is not returned; the validator
// likewise accepts only IN as a question class.
func ParseRRLine(line string) (name string, ttl uint32, rrtype wire.RRType, rdataText string, err error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) < 2 {
		return "", 0, 0, "", dnserr.New(dnserr.KindParseError, "malformed RR line: %q", line)
	}
	name = fields[0]

	rest := strings.Fields(fields[1])
	if len(rest) < 3 || !strings.EqualFold(rest[1], "IN") {
		return "", 0, 0, "", dnserr.New(dnserr.KindParseError, "expected \"<ttl> IN <type>\" in %q", line)
	}
	ttlVal, perr := strconv.ParseUint(rest[0], 10, 32)
	if perr != nil {
		return "", 0, 0, "", dnserr.Wrap(dnserr.KindParseError, perr, "invalid ttl %q", rest[0])
	}
	ttl = uint32(ttlVal)

	rrtype = wire.RRTypeFromString(strings.ToUpper(rest[2]))
	if !rrtype.IsValid() {
		return "", 0, 0, "", dnserr.New(dnserr.KindParseError, "unsupported RR type %q", rest[2])
	}

	typeIdx := strings.Index(fields[1], rest[2])
	rdataText = strings.TrimSpace(fields[1][typeIdx+len(rest[2]):])
	return name, ttl, rrtype, rdataText, nil
}

// BuildQuestion assembles a question-section record: a raw name
// followed by the 4-byte type/class header.
func BuildQuestion(name string, qtype wire.RRType, qclass wire.RRClass) ([]byte, error) {
	rawName, err := names.FromString(name, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(rawName)+wire.RRQuestionHeaderSize)
	out = append(out, rawName...)
	var hdr [wire.RRQuestionHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(qtype))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(qclass))
	return append(out, hdr[:]...), nil
}

// BuildRR assembles a full resource record — owner name, fixed header,
// and type-specific rdata parsed from rdataText — ready for
// packet.InsertRR.
func BuildRR(name string, ttl uint32, rrtype wire.RRType, rrclass wire.RRClass, rdataText string) ([]byte, error) {
	rawName, err := names.FromString(name, nil)
	if err != nil {
		return nil, err
	}
	rdata, err := buildRdata(rrtype, rdataText)
	if err != nil {
		return nil, err
	}
	if len(rdata) > 0xFFFF {
		return nil, dnserr.New(dnserr.KindInvalidPacket, "rdata too long for a 16-bit rdlen")
	}

	out := make([]byte, 0, len(rawName)+wire.RRHeaderSize+len(rdata))
	out = append(out, rawName...)
	var hdr [wire.RRHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(rrtype))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(rrclass))
	binary.BigEndian.PutUint32(hdr[4:8], ttl)
	binary.BigEndian.PutUint16(hdr[8:10], uint16(len(rdata)))
	out = append(out, hdr[:]...)
	out = append(out, rdata...)
	return out, nil
}

func buildRdata(rrtype wire.RRType, text string) ([]byte, error) {
	switch rrtype {
	case wire.RRTypeA:
		return buildA(text)
	case wire.RRTypeAAAA:
		return buildAAAA(text)
	case wire.RRTypeNS, wire.RRTypeCNAME, wire.RRTypePTR, wire.RRTypeDNAME:
		return names.FromString(text, nil)
	case wire.RRTypeMX:
		return buildMX(text)
	case wire.RRTypeTXT:
		return buildTXT(text)
	case wire.RRTypeSOA:
		return buildSOA(text)
	case wire.RRTypeDS:
		return buildDS(text)
	default:
		return nil, dnserr.New(dnserr.KindUnsupportedRRType, "no presentation-format builder for %s", rrtype)
	}
}

func buildA(text string) ([]byte, error) {
	ip := net.ParseIP(strings.TrimSpace(text))
	v4 := ip.To4()
	if v4 == nil {
		return nil, dnserr.New(dnserr.KindParseError, "invalid IPv4 address %q", text)
	}
	return v4, nil
}

func buildAAAA(text string) ([]byte, error) {
	ip := net.ParseIP(strings.TrimSpace(text))
	if ip == nil || ip.To4() != nil {
		return nil, dnserr.New(dnserr.KindParseError, "invalid IPv6 address %q", text)
	}
	return ip.To16(), nil
}

func buildMX(text string) ([]byte, error) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return nil, dnserr.New(dnserr.KindParseError, "expected \"<preference> <exchange>\", got %q", text)
	}
	pref, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid MX preference %q", parts[0])
	}
	exchange, err := names.FromString(parts[1], nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2, 2+len(exchange))
	binary.BigEndian.PutUint16(out, uint16(pref))
	return append(out, exchange...), nil
}

func buildSOA(text string) ([]byte, error) {
	cleaned := strings.NewReplacer("(", " ", ")", " ").Replace(text)
	parts := strings.Fields(cleaned)
	if len(parts) != 7 {
		return nil, dnserr.New(dnserr.KindParseError, "expected 7 SOA fields, got %d in %q", len(parts), text)
	}
	primaryNS, err := names.FromString(parts[0], nil)
	if err != nil {
		return nil, err
	}
	contact, err := names.FromString(parts[1], nil)
	if err != nil {
		return nil, err
	}
	var meta [20]byte
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(parts[i+2], 10, 32)
		if err != nil {
			return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid SOA field %q", parts[i+2])
		}
		binary.BigEndian.PutUint32(meta[i*4:], uint32(v))
	}
	out := make([]byte, 0, len(primaryNS)+len(contact)+20)
	out = append(out, primaryNS...)
	out = append(out, contact...)
	out = append(out, meta[:]...)
	return out, nil
}

func buildDS(text string) ([]byte, error) {
	parts := strings.Fields(text)
	if len(parts) != 4 {
		return nil, dnserr.New(dnserr.KindParseError, "expected \"<key-tag> <algorithm> <digest-type> <digest>\", got %q", text)
	}
	keyTag, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid DS key tag %q", parts[0])
	}
	algorithm, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid DS algorithm %q", parts[1])
	}
	digestType, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid DS digest type %q", parts[2])
	}
	digest, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, dnserr.Wrap(dnserr.KindParseError, err, "invalid DS digest %q", parts[3])
	}
	out := make([]byte, 4, 4+len(digest))
	binary.BigEndian.PutUint16(out[0:2], uint16(keyTag))
	out[2] = byte(algorithm)
	out[3] = byte(digestType)
	return append(out, digest...), nil
}

// buildTXT unescapes a double-quoted character string (\ddd decimal
// escapes and \X literal escapes, per RFC 1035 5.1) and splits the
// result into ≤255-byte length-prefixed chunks.
func buildTXT(text string) ([]byte, error) {
	quoted := strings.TrimSpace(text)
	if len(quoted) < 2 || quoted[0] != '"' || quoted[len(quoted)-1] != '"' {
		return nil, dnserr.New(dnserr.KindParseError, "TXT rdata must be a quoted string: %q", text)
	}
	body := quoted[1 : len(quoted)-1]

	var plain []byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			plain = append(plain, c)
			continue
		}
		i++
		if i >= len(body) {
			return nil, dnserr.New(dnserr.KindParseError, "dangling escape in TXT string")
		}
		if body[i] >= '0' && body[i] <= '9' && i+2 < len(body) {
			n, err := strconv.Atoi(body[i : i+3])
			if err == nil && n <= 255 {
				plain = append(plain, byte(n))
				i += 2
				continue
			}
		}
		plain = append(plain, body[i])
	}
	if len(plain) > maxTXTPlain {
		return nil, dnserr.New(dnserr.KindInvalidPacket, "TXT text too long")
	}

	var rdata []byte
	for len(plain) > 0 {
		n := len(plain)
		if n > 255 {
			n = 255
		}
		rdata = append(rdata, byte(n))
		rdata = append(rdata, plain[:n]...)
		plain = plain[n:]
	}
	if rdata == nil {
		rdata = []byte{0}
	}
	return rdata, nil
}
