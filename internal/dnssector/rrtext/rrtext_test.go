package rrtext

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/names"
	"github.com/haukened/dnssector/internal/dnssector/wire"
	"github.com/stretchr/testify/require"
)

func TestParseRRLine_Valid(t *testing.T) {
	name, ttl, rrtype, rdata, err := ParseRRLine("www.example.com. 300 IN A 1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, "www.example.com.", name)
	require.EqualValues(t, 300, ttl)
	require.Equal(t, wire.RRTypeA, rrtype)
	require.Equal(t, "1.2.3.4", rdata)
}

func TestParseRRLine_TXTKeepsQuotedRdata(t *testing.T) {
	_, _, rrtype, rdata, err := ParseRRLine(`example.com. 60 IN TXT "hello world"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rrtype != wire.RRTypeTXT || rdata != `"hello world"` {
		t.Errorf("rdata = %q, rrtype = %v", rdata, rrtype)
	}
}

func TestParseRRLine_RejectsMalformedLine(t *testing.T) {
	if _, _, _, _, err := ParseRRLine("example.com. 300 A"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError, got %v", err)
	}
}

func TestParseRRLine_RejectsNonINClass(t *testing.T) {
	if _, _, _, _, err := ParseRRLine("example.com. 300 CH A 1.2.3.4"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError for a non-IN class, got %v", err)
	}
}

func TestParseRRLine_RejectsUnsupportedType(t *testing.T) {
	if _, _, _, _, err := ParseRRLine("example.com. 300 IN NOPE whatever"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError for an unsupported type, got %v", err)
	}
}

func TestBuildQuestion(t *testing.T) {
	raw, err := BuildQuestion("example.com.", wire.RRTypeA, wire.RRClassIN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	if len(raw) != len(wantName)+4 {
		t.Fatalf("len(raw) = %d, want %d", len(raw), len(wantName)+4)
	}
	if !bytes.Equal(raw[:len(wantName)], wantName) {
		t.Errorf("name bytes = %v, want %v", raw[:len(wantName)], wantName)
	}
	qtype := binary.BigEndian.Uint16(raw[len(wantName):])
	qclass := binary.BigEndian.Uint16(raw[len(wantName)+2:])
	if wire.RRType(qtype) != wire.RRTypeA || wire.RRClass(qclass) != wire.RRClassIN {
		t.Errorf("qtype=%d qclass=%d", qtype, qclass)
	}
}

func TestBuildRR_A(t *testing.T) {
	raw, err := BuildRR("example.com.", 60, wire.RRTypeA, wire.RRClassIN, "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdlen := binary.BigEndian.Uint16(raw[len(wantName)+8 : len(wantName)+10])
	if rdlen != 4 {
		t.Fatalf("rdlen = %d, want 4", rdlen)
	}
	rdata := raw[len(wantName)+10:]
	if !bytes.Equal(rdata, []byte{1, 2, 3, 4}) {
		t.Errorf("rdata = %v, want [1 2 3 4]", rdata)
	}
}

func TestBuildRR_A_RejectsIPv6(t *testing.T) {
	if _, err := BuildRR("example.com.", 60, wire.RRTypeA, wire.RRClassIN, "::1"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError, got %v", err)
	}
}

func TestBuildRR_AAAA(t *testing.T) {
	raw, err := BuildRR("example.com.", 60, wire.RRTypeAAAA, wire.RRClassIN, "2001:db8::1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	if len(rdata) != 16 {
		t.Fatalf("rdata len = %d, want 16", len(rdata))
	}
}

func TestBuildRR_NS_CNAME_PTR_DNAME_UseRawName(t *testing.T) {
	for _, rrtype := range []wire.RRType{wire.RRTypeNS, wire.RRTypeCNAME, wire.RRTypePTR, wire.RRTypeDNAME} {
		raw, err := BuildRR("example.com.", 60, rrtype, wire.RRClassIN, "target.example.org.")
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", rrtype, err)
		}
		wantName, _ := names.FromString("example.com.", nil)
		wantTarget, _ := names.FromString("target.example.org.", nil)
		rdata := raw[len(wantName)+10:]
		if !bytes.Equal(rdata, wantTarget) {
			t.Errorf("%v: rdata = %v, want %v", rrtype, rdata, wantTarget)
		}
	}
}

func TestBuildRR_MX(t *testing.T) {
	raw, err := BuildRR("example.com.", 60, wire.RRTypeMX, wire.RRClassIN, "10 mail.example.com.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	pref := binary.BigEndian.Uint16(rdata[0:2])
	if pref != 10 {
		t.Errorf("preference = %d, want 10", pref)
	}
	wantExchange, _ := names.FromString("mail.example.com.", nil)
	if !bytes.Equal(rdata[2:], wantExchange) {
		t.Errorf("exchange = %v, want %v", rdata[2:], wantExchange)
	}
}

func TestBuildRR_MX_RejectsBadArity(t *testing.T) {
	if _, err := BuildRR("example.com.", 60, wire.RRTypeMX, wire.RRClassIN, "mail.example.com."); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError, got %v", err)
	}
}

func TestBuildRR_SOA(t *testing.T) {
	raw, err := BuildRR("example.com.", 3600, wire.RRTypeSOA, wire.RRClassIN,
		"ns1.example.com. hostmaster.example.com. 2024010100 7200 3600 1209600 300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	wantNS, _ := names.FromString("ns1.example.com.", nil)
	wantContact, _ := names.FromString("hostmaster.example.com.", nil)
	if !bytes.Equal(rdata[:len(wantNS)], wantNS) {
		t.Errorf("primary NS = %v, want %v", rdata[:len(wantNS)], wantNS)
	}
	rest := rdata[len(wantNS):]
	if !bytes.Equal(rest[:len(wantContact)], wantContact) {
		t.Errorf("contact = %v, want %v", rest[:len(wantContact)], wantContact)
	}
	meta := rest[len(wantContact):]
	if len(meta) != 20 {
		t.Fatalf("meta len = %d, want 20", len(meta))
	}
	serial := binary.BigEndian.Uint32(meta[0:4])
	if serial != 2024010100 {
		t.Errorf("serial = %d, want 2024010100", serial)
	}
	minimum := binary.BigEndian.Uint32(meta[16:20])
	if minimum != 300 {
		t.Errorf("minimum = %d, want 300", minimum)
	}
}

func TestBuildRR_SOA_RejectsWrongFieldCount(t *testing.T) {
	if _, err := BuildRR("example.com.", 3600, wire.RRTypeSOA, wire.RRClassIN, "ns1.example.com. hostmaster.example.com. 1 2 3"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError, got %v", err)
	}
}

func TestBuildRR_DS(t *testing.T) {
	raw, err := BuildRR("example.com.", 3600, wire.RRTypeDS, wire.RRClassIN, "12345 8 2 ABCDEF01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	keyTag := binary.BigEndian.Uint16(rdata[0:2])
	if keyTag != 12345 || rdata[2] != 8 || rdata[3] != 2 {
		t.Errorf("keyTag=%d algorithm=%d digestType=%d", keyTag, rdata[2], rdata[3])
	}
	if !bytes.Equal(rdata[4:], []byte{0xAB, 0xCD, 0xEF, 0x01}) {
		t.Errorf("digest = %v", rdata[4:])
	}
}

func TestBuildRR_DS_RejectsBadDigest(t *testing.T) {
	if _, err := BuildRR("example.com.", 3600, wire.RRTypeDS, wire.RRClassIN, "12345 8 2 zz"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError, got %v", err)
	}
}

func TestBuildRR_TXT_PlainAndEscapes(t *testing.T) {
	raw, err := BuildRR("example.com.", 60, wire.RRTypeTXT, wire.RRClassIN, `"hello\032world\046"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	n := int(rdata[0])
	if n != len("hello world.") {
		t.Fatalf("chunk length = %d, want %d", n, len("hello world."))
	}
	if string(rdata[1:1+n]) != "hello world." {
		t.Errorf("chunk = %q", rdata[1:1+n])
	}
}

func TestBuildRR_TXT_RejectsUnquoted(t *testing.T) {
	if _, err := BuildRR("example.com.", 60, wire.RRTypeTXT, wire.RRClassIN, "hello"); !dnserr.Is(err, dnserr.KindParseError) {
		t.Errorf("expected KindParseError for an unquoted TXT string, got %v", err)
	}
}

func TestBuildRR_TXT_ChunksLongStrings(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	raw, err := BuildRR("example.com.", 60, wire.RRTypeTXT, wire.RRClassIN, `"`+string(long)+`"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantName, _ := names.FromString("example.com.", nil)
	rdata := raw[len(wantName)+10:]
	if rdata[0] != 255 {
		t.Fatalf("first chunk length = %d, want 255", rdata[0])
	}
	secondLen := int(rdata[1+255])
	if secondLen != 45 {
		t.Errorf("second chunk length = %d, want 45", secondLen)
	}
}

func TestBuildRR_UnsupportedType(t *testing.T) {
	if _, err := BuildRR("example.com.", 60, wire.RRTypeOPT, wire.RRClassIN, "whatever"); !dnserr.Is(err, dnserr.KindUnsupportedRRType) {
		t.Errorf("expected KindUnsupportedRRType, got %v", err)
	}
}
