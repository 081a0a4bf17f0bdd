package protocol

import "fmt"

// PacketID tags the meaning of a packet payload.
type PacketID uint8

const (
	PacketFinish          PacketID = 1
	PacketKEM             PacketID = 3
	PacketKDF             PacketID = 4
	PacketAEAD            PacketID = 5
	PacketPublicKey       PacketID = 6
	PacketEncappedKey     PacketID = 7
	PacketCiphertext      PacketID = 8
	PacketAssociatedData  PacketID = 9
	PacketTag             PacketID = 10
	PacketPSK             PacketID = 11
	PacketPSKID           PacketID = 12
	PacketSharedSecret    PacketID = 13
	PacketHello           PacketID = 14
	PacketKeyRefresh      PacketID = 15
	PacketBreakConnection PacketID = 99
)

func (id PacketID) String() string {
	switch id {
	case PacketFinish:
		return "FINISH"
	case PacketKEM:
		return "KEM"
	case PacketKDF:
		return "KDF"
	case PacketAEAD:
		return "AEAD"
	case PacketPublicKey:
		return "PUBKEY"
	case PacketEncappedKey:
		return "ENCKEY"
	case PacketCiphertext:
		return "CIPHERTEXT"
	case PacketAssociatedData:
		return "ASSOCIATED_DATA"
	case PacketTag:
		return "TAGBYTES"
	case PacketPSK:
		return "PSK"
	case PacketPSKID:
		return "PSK_ID"
	case PacketSharedSecret:
		return "SHARED_SECRET"
	case PacketHello:
		return "HELLO"
	case PacketKeyRefresh:
		return "KEY_REFRESH"
	case PacketBreakConnection:
		return "BREAK_CONNECTION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(id))
	}
}

// Known reports whether id is part of the wire vocabulary.
func (id PacketID) Known() bool {
	switch id {
	case PacketFinish, PacketKEM, PacketKDF, PacketAEAD, PacketPublicKey,
		PacketEncappedKey, PacketCiphertext, PacketAssociatedData, PacketTag,
		PacketPSK, PacketPSKID, PacketSharedSecret, PacketHello,
		PacketKeyRefresh, PacketBreakConnection:
		return true
	}
	return false
}

// Encoding describes how the payload bytes are to be read.
type Encoding uint8

const (
	// EncodingUTF8 carries raw bytes.
	EncodingUTF8 Encoding = 1
	// EncodingUTF16 carries big-endian uint16 elements.
	EncodingUTF16 Encoding = 2
	// EncodingLZ4 carries raw bytes compressed as an LZ4 frame.
	EncodingLZ4 Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF8"
	case EncodingUTF16:
		return "UTF16"
	case EncodingLZ4:
		return "LZ4"
	default:
		return fmt.Sprintf("ENCODING(%d)", uint8(e))
	}
}

func (e Encoding) valid() bool {
	return e == EncodingUTF8 || e == EncodingUTF16 || e == EncodingLZ4
}

// Ack bytes written by the receiver of every packet except BREAK_CONNECTION.
const (
	AckReceived byte = 0
	AckError    byte = 2
)
