package validator

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

var limits = Limits{MaxIndirections: 16, MaxUncompressedSize: 8192}

func rawName(labels ...string) []byte {
	var b bytes.Buffer
	for _, l := range labels {
		b.WriteByte(byte(len(l)))
		b.WriteString(l)
	}
	b.WriteByte(0)
	return b.Bytes()
}

// header builds the fixed 12-byte DNS header.
func header(flags uint16, qd, an, ns, ar uint16) []byte {
	buf := make([]byte, wire.HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], 0x1234)
	binary.BigEndian.PutUint16(buf[2:4], flags)
	binary.BigEndian.PutUint16(buf[4:6], qd)
	binary.BigEndian.PutUint16(buf[6:8], an)
	binary.BigEndian.PutUint16(buf[8:10], ns)
	binary.BigEndian.PutUint16(buf[10:12], ar)
	return buf
}

func question(name []byte, qtype, qclass uint16) []byte {
	var b bytes.Buffer
	b.Write(name)
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], qtype)
	binary.BigEndian.PutUint16(hdr[2:4], qclass)
	b.Write(hdr[:])
	return b.Bytes()
}

func rr(name []byte, rrtype, rrclass uint16, ttl uint32, rdata []byte) []byte {
	var b bytes.Buffer
	b.Write(name)
	var hdr [10]byte
	binary.BigEndian.PutUint16(hdr[0:2], rrtype)
	binary.BigEndian.PutUint16(hdr[2:4], rrclass)
	binary.BigEndian.PutUint32(hdr[4:8], ttl)
	binary.BigEndian.PutUint16(hdr[8:10], uint16(len(rdata)))
	b.Write(hdr[:])
	b.Write(rdata)
	return b.Bytes()
}

func buildResponse(t *testing.T, extra ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR)|uint16(wire.FlagRD), 1, uint16(len(extra)), 0, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	for _, rec := range extra {
		buf.Write(rec)
	}
	return buf.Bytes()
}

// buildAdditionalResponse is buildResponse with the records placed in
// the Additional section instead of Answer, the only section OPT may use.
func buildAdditionalResponse(t *testing.T, additional ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR)|uint16(wire.FlagRD), 1, 0, 0, uint16(len(additional))))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	for _, rec := range additional {
		buf.Write(rec)
	}
	return buf.Bytes()
}

func TestValidate_EmptyInput(t *testing.T) {
	_, err := Validate(nil, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindPacketTooSmall))
}

func TestValidate_HeaderOnlyZeroQuestion(t *testing.T) {
	buf := header(0, 0, 0, 0, 0)
	res, err := Validate(buf, limits, nil)
	require.NoError(t, err, "qdcount==0 should be accepted")
	assert.Nil(t, res.Question, "expected no cached question")
}

func TestValidate_TwoQuestionsRejected(t *testing.T) {
	buf := header(0, 2, 0, 0, 0)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket))
}

func TestValidate_NonResponseWithAnswersRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagRD), 1, 1, 0, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	buf.Write(rr(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 2, 3, 4}))
	_, err := Validate(buf.Bytes(), limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a query carrying answers should be rejected")
}

func TestValidate_LabelTooLong(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(0, 1, 0, 0, 0))
	name := append([]byte{64}, make([]byte, 64)...)
	name = append(name, 0)
	buf.Write(question(name, uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	_, err := Validate(buf.Bytes(), limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestValidate_CompressionCycleRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(0, 1, 0, 0, 0))
	buf.Write([]byte{0xC0, 0x0E, 0xC0, 0x0C, 0, 1, 0, 1}) // two labels pointing at each other
	_, err := Validate(buf.Bytes(), limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestValidate_NonINQuestionClassRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(0, 1, 0, 0, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassCH)))
	_, err := Validate(buf.Bytes(), limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a non-IN question class should be rejected")
}

func TestValidate_TrailingBytesRejected(t *testing.T) {
	buf := buildResponse(t)
	buf = append(buf, 0xFF)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket))
}

func TestValidate_ARecordExactRdlen(t *testing.T) {
	bad := rr(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 2, 3})
	buf := buildResponse(t, bad)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a short A rdata should be rejected")
}

func TestValidate_ValidAResponse(t *testing.T) {
	good := rr(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{78, 194, 219, 1})
	buf := buildResponse(t, good)
	res, err := Validate(buf, limits, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Question)
	assert.Equal(t, "example.com", res.Question.Name)
	assert.GreaterOrEqual(t, res.Offsets.Answer, 0, "expected a populated Answer offset")
	assert.Equal(t, uint16(1), res.ANCount)
}

func TestValidate_AAAARecordExactRdlen(t *testing.T) {
	bad := rr(rawName("example", "com"), uint16(wire.RRTypeAAAA), uint16(wire.RRClassIN), 60, make([]byte, 15))
	buf := buildResponse(t, bad)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a short AAAA rdata should be rejected")
}

func TestValidate_CNAMERdataMustFillExactly(t *testing.T) {
	target := rawName("target", "example", "com")
	padded := append(append([]byte{}, target...), 0xFF)
	bad := rr(rawName("alias", "example", "com"), uint16(wire.RRTypeCNAME), uint16(wire.RRClassIN), 60, padded)
	buf := buildResponse(t, bad)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "CNAME rdata with slack bytes should be rejected")
}

func TestValidate_MXRecord(t *testing.T) {
	exchange := rawName("mail", "example", "com")
	rdata := append([]byte{0, 10}, exchange...)
	good := rr(rawName("example", "com"), uint16(wire.RRTypeMX), uint16(wire.RRClassIN), 60, rdata)
	buf := buildResponse(t, good)
	_, err := Validate(buf, limits, nil)
	assert.NoError(t, err)
}

func TestValidate_SOARecord(t *testing.T) {
	ns := rawName("ns1", "example", "com")
	contact := rawName("hostmaster", "example", "com")
	var rdata bytes.Buffer
	rdata.Write(ns)
	rdata.Write(contact)
	rdata.Write(make([]byte, 20))
	good := rr(rawName("example", "com"), uint16(wire.RRTypeSOA), uint16(wire.RRClassIN), 60, rdata.Bytes())
	buf := buildResponse(t, good)
	_, err := Validate(buf, limits, nil)
	assert.NoError(t, err)
}

func TestValidate_DNAMERecord(t *testing.T) {
	target := rawName("new", "example", "com")
	good := rr(rawName("old", "example", "com"), uint16(wire.RRTypeDNAME), uint16(wire.RRClassIN), 60, target)
	buf := buildResponse(t, good)
	_, err := Validate(buf, limits, nil)
	assert.NoError(t, err)
}

func buildOPT(maxPayload uint16, extRcode, version uint8, extFlags uint16, options []byte) []byte {
	var rdata bytes.Buffer
	rdata.Write(options)
	ttl := uint32(extRcode)<<24 | uint32(version)<<16 | uint32(extFlags)
	return rr([]byte{0}, uint16(wire.RRTypeOPT), maxPayload, ttl, rdata.Bytes())
}

func TestValidate_OPTRecord(t *testing.T) {
	opt := buildOPT(4096, 0, 0, 0x8000, nil)
	buf := buildAdditionalResponse(t, opt)
	res, err := Validate(buf, limits, nil)
	require.NoError(t, err)
	require.True(t, res.Edns.Present)
	assert.Equal(t, uint16(4096), res.Edns.MaxPayload)
	assert.Equal(t, uint16(0x8000), res.Edns.ExtFlags)
}

func TestValidate_OPTOutsideAdditionalRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR), 1, 0, 1, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	buf.Write(buildOPT(4096, 0, 0, 0, nil))
	_, err := Validate(buf.Bytes(), limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "OPT outside Additional should be rejected")
}

func TestValidate_DuplicateOPTRejected(t *testing.T) {
	buf := buildAdditionalResponse(t, buildOPT(4096, 0, 0, 0, nil), buildOPT(4096, 0, 0, 0, nil))
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a duplicate OPT should be rejected")
}

func TestValidate_OPTOwnerMustBeRoot(t *testing.T) {
	bad := rr(rawName("not-root"), uint16(wire.RRTypeOPT), 4096, 0, nil)
	buf := buildAdditionalResponse(t, bad)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a non-root OPT owner should be rejected")
}

func TestValidate_OPTOptionsMustFillRdataExactly(t *testing.T) {
	opts := []byte{0, 3, 0, 2, 'h', 'i', 0xFF} // trailing byte doesn't belong to any option
	bad := buildOPT(4096, 0, 0, 0, opts)
	buf := buildAdditionalResponse(t, bad)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidPacket), "a malformed EDNS option stream should be rejected")
}

func TestValidate_OPTOptionsCounted(t *testing.T) {
	opts := append([]byte{0, 3, 0, 2, 'h', 'i'}, []byte{0, 8, 0, 0}...)
	good := buildOPT(4096, 0, 0, 0, opts)
	buf := buildAdditionalResponse(t, good)
	res, err := Validate(buf, limits, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Edns.Count)
}

func TestValidate_PacketTooLarge(t *testing.T) {
	buf := make([]byte, 70000)
	_, err := Validate(buf, limits, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindPacketTooLarge))
}

func TestValidate_CompressedAdditionalNameSetsMaybeCompressed(t *testing.T) {
	// The question name is literal (it has nothing earlier to point at);
	// the maybeCompressed flag comes from an Additional record whose
	// owner name points back into the question.
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR), 1, 0, 0, 1))
	qstart := wire.HeaderSize
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	ptr := []byte{0xC0 | byte(qstart>>8), byte(qstart)}
	buf.Write(rr(ptr, uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 1, 1, 1}))

	res, err := Validate(buf.Bytes(), limits, nil)
	require.NoError(t, err)
	assert.True(t, res.MaybeCompressed)
}

func TestValidate_CompressedRdataNameSetsMaybeCompressed(t *testing.T) {
	// The owner names are all literal; only the CNAME target inside
	// rdata is a pointer, back to the question name.
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR), 1, 1, 0, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN)))
	ptr := []byte{0xC0, byte(wire.HeaderSize)}
	buf.Write(rr(rawName("alias", "example", "com"), uint16(wire.RRTypeCNAME), uint16(wire.RRClassIN), 60, ptr))

	res, err := Validate(buf.Bytes(), limits, nil)
	require.NoError(t, err)
	assert.True(t, res.MaybeCompressed, "a pointer inside rdata must flag the message as maybe-compressed")
}

func TestValidateAll_SuccessPassesThrough(t *testing.T) {
	good := rr(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 2, 3, 4})
	buf := buildResponse(t, good)
	res, err := ValidateAll(buf, limits, nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestValidateAll_FatalFailureIsASingleError(t *testing.T) {
	_, err := ValidateAll(nil, limits, nil)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Lenf(t, errs, 1, "expected the aggregate to unwrap to a single error, got %v", err)
	assert.True(t, dnserr.Is(errs[0], dnserr.KindPacketTooSmall))
}

func TestValidateAll_CollectsEveryBadRecord(t *testing.T) {
	badA := rr(rawName("a", "example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 2, 3})
	badAAAA := rr(rawName("b", "example", "com"), uint16(wire.RRTypeAAAA), uint16(wire.RRClassIN), 60, make([]byte, 15))
	buf := buildResponse(t, badA, badAAAA)

	// Fail-fast stops at the first record.
	_, err := Validate(buf, limits, nil)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)

	// The collecting walk reaches both.
	_, err = ValidateAll(buf, limits, nil)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Lenf(t, errs, 2, "expected one error per bad record, got %v", err)
	assert.True(t, dnserr.Is(errs[0], dnserr.KindInvalidPacket))
	assert.True(t, dnserr.Is(errs[1], dnserr.KindInvalidPacket))
	assert.Contains(t, errs[0].Error(), "A record")
	assert.Contains(t, errs[1].Error(), "AAAA record")
}

func TestValidateAll_CollectsQuestionClassAndRecordErrors(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(header(uint16(wire.FlagQR), 1, 1, 0, 0))
	buf.Write(question(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassCH)))
	buf.Write(rr(rawName("example", "com"), uint16(wire.RRTypeA), uint16(wire.RRClassIN), 60, []byte{1, 2, 3}))

	_, err := ValidateAll(buf.Bytes(), limits, nil)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Lenf(t, errs, 2, "expected the class error and the rdata error, got %v", err)
	assert.Contains(t, errs[0].Error(), "question class")
	assert.Contains(t, errs[1].Error(), "A record")
}

func TestValidateAll_CollectsDuplicateOPTAndKeepsWalking(t *testing.T) {
	buf := buildAdditionalResponse(t, buildOPT(4096, 0, 0, 0, nil), buildOPT(4096, 0, 0, 0, nil))
	_, err := ValidateAll(buf, limits, nil)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Lenf(t, errs, 1, "expected only the duplicate-OPT error, got %v", err)
	assert.True(t, dnserr.Is(errs[0], dnserr.KindInvalidPacket))
	assert.Contains(t, errs[0].Error(), "duplicate OPT")
}
