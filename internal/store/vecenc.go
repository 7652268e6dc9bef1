package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding blobs are stored in a versioned little-endian binary format:
//
//	magic "CVEC" | version u8 | dim u32 | count u32 | count*dim float32
//
// The header makes dimension and format mismatches detectable before any
// vector is decoded.
const (
	vecMagic   = "CVEC"
	vecVersion = 1
	vecHeader  = 4 + 1 + 4 + 4
)

// EncodeVectors serializes vectors into an embedding blob.
// All vectors must share the same dimension.
func EncodeVectors(vecs [][]float32) ([]byte, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no vectors to encode")
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	buf := make([]byte, vecHeader+len(vecs)*dim*4)
	copy(buf, vecMagic)
	buf[4] = vecVersion
	binary.LittleEndian.PutUint32(buf[5:], uint32(dim))
	binary.LittleEndian.PutUint32(buf[9:], uint32(len(vecs)))

	off := vecHeader
	for _, v := range vecs {
		for _, val := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(val))
			off += 4
		}
	}
	return buf, nil
}

// DecodeVectors deserializes an embedding blob.
// Malformed blobs fail before any float is read.
func DecodeVectors(blob []byte) ([][]float32, error) {
	if len(blob) < vecHeader {
		return nil, fmt.Errorf("embedding blob too short: %d bytes", len(blob))
	}
	if string(blob[:4]) != vecMagic {
		return nil, fmt.Errorf("bad embedding blob magic")
	}
	if blob[4] != vecVersion {
		return nil, fmt.Errorf("unsupported embedding blob version %d", blob[4])
	}
	dim := int(binary.LittleEndian.Uint32(blob[5:]))
	count := int(binary.LittleEndian.Uint32(blob[9:]))
	if dim <= 0 || count <= 0 {
		return nil, fmt.Errorf("invalid embedding blob header: dim=%d count=%d", dim, count)
	}
	if len(blob) != vecHeader+count*dim*4 {
		return nil, fmt.Errorf("embedding blob size %d does not match header (dim=%d count=%d)", len(blob), dim, count)
	}

	vecs := make([][]float32, count)
	off := vecHeader
	for i := range vecs {
		v := make([]float32, dim)
		for d := range v {
			v[d] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off:]))
			off += 4
		}
		vecs[i] = v
	}
	return vecs, nil
}

// VectorDim reads only the dimension from an embedding blob header.
func VectorDim(blob []byte) (int, error) {
	if len(blob) < vecHeader || string(blob[:4]) != vecMagic || blob[4] != vecVersion {
		return 0, fmt.Errorf("bad embedding blob header")
	}
	return int(binary.LittleEndian.Uint32(blob[5:])), nil
}
