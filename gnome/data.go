package gnome

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// MaxPayloadBytes bounds a round's proposal payload, matching the
// source's CastData/SyncData size guards (original_source/src/data.rs).
const MaxPayloadBytes = 1364

// Data is a round's opaque proposal payload, bounded by MaxPayloadBytes.
type Data struct {
	bytes []byte
}

// NewData wraps contents as a proposal payload, rejecting anything over
// MaxPayloadBytes.
func NewData(contents []byte) (Data, error) {
	if len(contents) > MaxPayloadBytes {
		return Data{}, fmt.Errorf("%w: %d bytes > max %d", ErrPayloadTooLarge, len(contents), MaxPayloadBytes)
	}
	cp := make([]byte, len(contents))
	copy(cp, contents)
	return Data{bytes: cp}, nil
}

// EmptyData is the zero-length payload used for "no proposal".
func EmptyData() Data { return Data{} }

// Bytes returns the payload's contents. Callers must not mutate the result.
func (d Data) Bytes() []byte { return d.bytes }

// Len returns the payload size in bytes.
func (d Data) Len() int { return len(d.bytes) }

func (d Data) String() string {
	return fmt.Sprintf("[len:%d]", len(d.bytes))
}

// BlockID derives this payload's fingerprint via ComputeBlockID.
func (d Data) BlockID() BlockID {
	return ComputeBlockID(d.bytes)
}

// ComputeBlockID hashes data with blake3 and truncates to 64 bits, giving
// the stable block-id-is-a-function-of-data mapping spec.md §3 requires.
// blake3 is used because it is already a declared corpus dependency and is
// fast enough to run on every accepted proposal without becoming the
// round's bottleneck.
func ComputeBlockID(data []byte) BlockID {
	sum := blake3.Sum256(data)
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(sum[i]) << (8 * i)
	}
	if v == 0 {
		// Never collide with the "no proposal" sentinel.
		v = 1
	}
	return BlockID(v)
}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func sharedEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return encoder
}

func sharedDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// EncodePayload compresses a proposal's bytes for a caller that frames
// them for a byte-oriented transport. Message and Neighbor do not call it:
// they carry Data uncompressed. Data itself is never compressed, so the
// in-memory size check (MaxPayloadBytes) always sees the uncompressed
// payload a proposer actually authored.
func EncodePayload(d Data) []byte {
	if d.Len() == 0 {
		return nil
	}
	return sharedEncoder().EncodeAll(d.bytes, nil)
}

// DecodePayload reverses EncodePayload. An empty or nil input decodes to
// EmptyData.
func DecodePayload(encoded []byte) (Data, error) {
	if len(encoded) == 0 {
		return EmptyData(), nil
	}
	raw, err := sharedDecoder().DecodeAll(encoded, nil)
	if err != nil {
		return Data{}, fmt.Errorf("decode payload: %w", err)
	}
	return NewData(raw)
}
