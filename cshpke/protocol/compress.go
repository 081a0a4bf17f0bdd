package protocol

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

var ErrDecompressionFailed = errors.Wrap(ErrMalformedPacket, "lz4 decompression failed")

var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	_ = w.Apply(lz4.CompressionLevelOption(lz4.Fast))

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress inflates an LZ4 frame, refusing output beyond MaxPacketPayload.
func decompress(data []byte) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxPacketPayload+1))
	if err != nil {
		return nil, errors.Wrap(ErrDecompressionFailed, err.Error())
	}
	if n > MaxPacketPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "decompressed payload exceeds %d bytes", MaxPacketPayload)
	}
	return buf.Bytes(), nil
}

// Compressed returns p re-encoded as LZ4 when that shrinks a UTF8 payload,
// and p unchanged otherwise.
func Compressed(p Packet) Packet {
	if p.Encoding != EncodingUTF8 || len(p.Payload) == 0 {
		return p
	}
	c, err := compress(p.Payload)
	if err != nil || len(c) >= len(p.Payload) {
		return p
	}
	return Packet{ID: p.ID, Encoding: EncodingLZ4, Payload: c}
}
