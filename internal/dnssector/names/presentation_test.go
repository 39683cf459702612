package names

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dnssector/internal/dnssector/dnserr"
)

func TestToString_PlainName(t *testing.T) {
	raw := append(append(label("WWW"), label("Example")...), append(label("COM"), 0)...)
	got, err := ToString(raw, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", got)
}

func TestToString_Root(t *testing.T) {
	got, err := ToString(rootZone(), 0, 16)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestToString_FollowsPointer(t *testing.T) {
	base := append(append(label("example"), label("com")...), 0)
	buf := append([]byte{}, base...)
	buf = append(buf, label("www")...)
	buf = append(buf, 0xC0, 0x00)

	got, err := ToString(buf, len(base), 16)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", got)
}

func TestToString_RejectsCycle(t *testing.T) {
	buf := []byte{0xC0, 0x02, 0xC0, 0x00}
	_, err := ToString(buf, 0, 16)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestFromString_RoundTrip(t *testing.T) {
	raw, err := FromString("www.Example.com.", nil)
	require.NoError(t, err)
	got, err := ToString(raw, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", got)
}

func TestFromString_RootForms(t *testing.T) {
	for _, in := range []string{"", "."} {
		raw, err := FromString(in, nil)
		require.NoErrorf(t, err, "FromString(%q)", in)
		assert.Truef(t, bytes.Equal(raw, []byte{0}), "FromString(%q) = %v, want [0]", in, raw)
	}
}

func TestFromString_DefaultZoneAppended(t *testing.T) {
	zone, err := FromString("example.com.", nil)
	require.NoError(t, err)
	raw, err := FromString("www", zone)
	require.NoError(t, err)
	want := append(label("www"), zone...)
	assert.True(t, bytes.Equal(raw, want))
}

func TestFromString_EmptyLabelRejected(t *testing.T) {
	_, err := FromString("www..com", nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestFromString_LabelTooLong(t *testing.T) {
	long := string(make([]byte, 64))
	_, err := FromString(long+".com.", nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestFromString_NonASCIIRejected(t *testing.T) {
	_, err := FromString("café.com.", nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}

func TestFromString_NameTooLong(t *testing.T) {
	label63 := string(bytes.Repeat([]byte{'a'}, 63))
	var long string
	for i := 0; i < 5; i++ {
		long += label63 + "."
	}
	_, err := FromString(long, nil)
	assert.True(t, dnserr.Is(err, dnserr.KindInvalidName))
}
