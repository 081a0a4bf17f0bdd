package protocol

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 255, 256, 4096, 70000} {
		payload := make([]byte, n)
		_, _ = rand.Read(payload)

		var buf bytes.Buffer
		in := NewBytesPacket(PacketCiphertext, payload)
		if err := WritePacket(&buf, in); err != nil {
			t.Fatalf("WritePacket(%d): %v", n, err)
		}
		if buf.Len() != HeaderSize+n {
			t.Fatalf("encoded length %d, want %d", buf.Len(), HeaderSize+n)
		}
		out, err := ReadPacket(&buf)
		if err != nil {
			t.Fatalf("ReadPacket(%d): %v", n, err)
		}
		if out.ID != in.ID || out.Encoding != in.Encoding {
			t.Fatalf("header mismatch: %+v", out)
		}
		if !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("payload mismatch at length %d", n)
		}
	}
}

func TestReadPacketStopsAtBoundary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, NewBytesPacket(PacketPublicKey, []byte("first"))))
	require.NoError(t, WritePacket(&buf, NewUint16Packet(PacketKEM, 0x0020)))

	first, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), first.Payload)

	second, err := ReadPacket(&buf)
	require.NoError(t, err)
	v, err := second.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0020), v)
}

func TestUint16Packet(t *testing.T) {
	p := NewUint16Packet(PacketAEAD, 1, 2, 0xbeef)
	require.Equal(t, []byte{0, 1, 0, 2, 0xbe, 0xef}, p.Payload)

	vals, err := p.Uint16s()
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 2, 0xbeef}, vals)

	_, err = p.Uint16()
	require.True(t, errors.Is(err, ErrMalformedPacket))
}

func TestDecodeRejects(t *testing.T) {
	odd := Packet{ID: PacketKDF, Encoding: EncodingUTF16, Payload: []byte{0, 1, 2}}
	_, err := odd.Uint16s()
	require.True(t, errors.Is(err, ErrMalformedPacket))

	empty := Packet{ID: PacketKDF, Encoding: EncodingUTF16}
	_, err = empty.Uint16s()
	require.True(t, errors.Is(err, ErrEmptyPayload))

	wrong := NewBytesPacket(PacketKEM, []byte{0, 0x20})
	_, err = wrong.Uint16s()
	require.True(t, errors.Is(err, ErrWrongEncoding))

	_, err = NewUint16Packet(PacketPublicKey, 7).Bytes()
	require.True(t, errors.Is(err, ErrWrongEncoding))

	_, err = NewBytesPacket(PacketEncappedKey, nil).RequireBytes()
	require.True(t, errors.Is(err, ErrEmptyPayload))

	b, err := NewBytesPacket(PacketAssociatedData, nil).Bytes()
	require.NoError(t, err)
	require.Empty(t, b)
}

func TestUnmarshalMalformed(t *testing.T) {
	cases := map[string][]byte{
		"short header":   {byte(PacketKEM), byte(EncodingUTF16), 0},
		"unknown id":     {200, byte(EncodingUTF8), 0, 0, 0, 0},
		"bad encoding":   {byte(PacketKEM), 9, 0, 0, 0, 0},
		"truncated":      {byte(PacketPublicKey), byte(EncodingUTF8), 0, 0, 0, 4, 1, 2},
		"trailing bytes": {byte(PacketFinish), byte(EncodingUTF8), 0, 0, 0, 0, 1},
		"too large":      {byte(PacketCiphertext), byte(EncodingUTF8), 0xff, 0xff, 0xff, 0xff},
	}
	for name, raw := range cases {
		if _, err := Unmarshal(raw); !errors.Is(err, ErrMalformedPacket) {
			t.Fatalf("%s: expected ErrMalformedPacket, got %v", name, err)
		}
	}
}

func TestMarshalRejectsUnknownID(t *testing.T) {
	_, err := Packet{ID: 42, Encoding: EncodingUTF8}.Marshal()
	require.True(t, errors.Is(err, ErrUnknownPacket))
}

func TestCompressedPacket(t *testing.T) {
	text := bytes.Repeat([]byte("associated data "), 512)
	p := Compressed(NewBytesPacket(PacketAssociatedData, text))
	require.Equal(t, EncodingLZ4, p.Encoding)
	require.Less(t, len(p.Payload), len(text))

	raw, err := p.Marshal()
	require.NoError(t, err)
	back, err := Unmarshal(raw)
	require.NoError(t, err)
	got, err := back.Bytes()
	require.NoError(t, err)
	require.Equal(t, text, got)

	noise := make([]byte, 1024)
	_, _ = rand.Read(noise)
	kept := Compressed(NewBytesPacket(PacketCiphertext, noise))
	require.Equal(t, EncodingUTF8, kept.Encoding)
	require.Equal(t, noise, kept.Payload)
}

func TestPacketIDString(t *testing.T) {
	require.Equal(t, "BREAK_CONNECTION", PacketBreakConnection.String())
	require.Equal(t, "UNKNOWN(77)", PacketID(77).String())
}

func BenchmarkPacketMarshal(b *testing.B) {
	p := NewBytesPacket(PacketCiphertext, make([]byte, 1024))
	b.SetBytes(1024)
	for i := 0; i < b.N; i++ {
		if _, err := p.Marshal(); err != nil {
			b.Fatal(err)
		}
	}
}
