/*
	This file implements the binary envelope wrapped around every serialized
	payload in the repo: a format byte, an optional checksum, then the data.
*/

package isovol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression is the format of compression for storing data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = 0
	Snappy                   = 1 << iota
	Zstd
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "No compression"
	case Snappy:
		return "Go Snappy compression"
	case Zstd:
		return "Go Zstd compression"
	default:
		return "Unknown compression"
	}
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = 0
	CRC32               = 1 << iota
)

func (checksum Checksum) String() string {
	switch checksum {
	case NoChecksum:
		return "No checksum"
	case CRC32:
		return "CRC32 checksum"
	default:
		return "Unknown checksum"
	}
}

// Shared zstd coders, safe for concurrent use through EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	return SerializationFormat((uint8(compress)&0x07)<<5 | (uint8(checksum)&0x03)<<3)
}

func DecodeSerializationFormat(s SerializationFormat) (Compression, Checksum) {
	return Compression(uint8(s) >> 5), Checksum((uint8(s) >> 3) & 0x03)
}

// compressData runs data through the requested codec.  Zstd output carries the
// uncompressed length as a little-endian uint32 prefix since the block format
// is not self-framing.
func compressData(data []byte, compress Compression) ([]byte, error) {
	switch compress {
	case Uncompressed:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		prefixed := make([]byte, 4, 4+len(data))
		binary.LittleEndian.PutUint32(prefixed, uint32(len(data)))
		return zstdEncoder.EncodeAll(data, prefixed), nil
	}
	return nil, fmt.Errorf("illegal compression (%s) during serialization", compress)
}

func uncompressData(cdata []byte, compress Compression) ([]byte, error) {
	switch compress {
	case Uncompressed:
		return cdata, nil
	case Snappy:
		return snappy.Decode(nil, cdata)
	case Zstd:
		if len(cdata) < 4 {
			return nil, fmt.Errorf("zstd payload too short (%d bytes)", len(cdata))
		}
		origSize := binary.LittleEndian.Uint32(cdata[:4])
		return zstdDecoder.DecodeAll(cdata[4:], make([]byte, 0, origSize))
	}
	return nil, fmt.Errorf("illegal compression format (%d) in deserialization", compress)
}

// SerializeData serializes a slice of bytes using optional compression, checksum.
// The layout is the format byte, a little-endian CRC32 of the compressed payload
// when requested, then the payload last so no length prefix is needed when
// deserializing.
func SerializeData(data []byte, compress Compression, checksum Checksum) ([]byte, error) {
	cdata, err := compressData(data, compress)
	if err != nil {
		return nil, err
	}

	headerLen := 1
	if checksum == CRC32 {
		headerLen += 4
	}
	s := make([]byte, headerLen, headerLen+len(cdata))
	s[0] = byte(EncodeSerializationFormat(compress, checksum))

	switch checksum {
	case NoChecksum:
	case CRC32:
		binary.LittleEndian.PutUint32(s[1:5], crc32.ChecksumIEEE(cdata))
	default:
		return nil, fmt.Errorf("illegal checksum (%s) in SerializeData()", checksum)
	}
	return append(s, cdata...), nil
}

// Serialize serializes an arbitrary Go object using Gob encoding and optional
// compression, checksum.  If your object is []byte, you should preferentially
// use SerializeData since the Gob encoding process adds some overhead in
// performance as well as size of wire format to describe the transmitted types.
func Serialize(object interface{}, compress Compression, checksum Checksum) ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(object); err != nil {
		return nil, err
	}
	return SerializeData(buffer.Bytes(), compress, checksum)
}

// DeserializeData deserializes a slice of bytes using stored compression, checksum.
// If uncompress parameter is false, the data is not uncompressed.
func DeserializeData(s []byte, uncompress bool) ([]byte, Compression, error) {
	if len(s) == 0 {
		return nil, 0, fmt.Errorf("deserialization of empty data buffer")
	}
	compress, checksum := DecodeSerializationFormat(SerializationFormat(s[0]))
	cdata := s[1:]

	switch checksum {
	case NoChecksum:
	case CRC32:
		if len(cdata) < 4 {
			return nil, 0, fmt.Errorf("data buffer too short (%d bytes) for checksum", len(s))
		}
		storedCrc32 := binary.LittleEndian.Uint32(cdata[:4])
		cdata = cdata[4:]
		if computed := crc32.ChecksumIEEE(cdata); computed != storedCrc32 {
			return nil, 0, fmt.Errorf("bad checksum.  Stored %x got %x", storedCrc32, computed)
		}
	default:
		return nil, 0, fmt.Errorf("illegal checksum in deserializing data")
	}

	if !uncompress {
		return cdata, compress, nil
	}
	data, err := uncompressData(cdata, compress)
	return data, compress, err
}

// Deserialize deserializes a Go object using Gob encoding.
func Deserialize(s []byte, object interface{}) error {
	data, _, err := DeserializeData(s, true)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(object)
}
