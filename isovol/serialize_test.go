package isovol

import (
	"bytes"
	"testing"
)

func TestSerializationFormat(t *testing.T) {
	for _, compress := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			format := EncodeSerializationFormat(compress, checksum)
			gotCompress, gotChecksum := DecodeSerializationFormat(format)
			if gotCompress != compress {
				t.Errorf("format %08b: got compression %s, expected %s", format, gotCompress, compress)
			}
			if gotChecksum != checksum {
				t.Errorf("format %08b: got checksum %s, expected %s", format, gotChecksum, checksum)
			}
		}
	}
}

func TestSerializeData(t *testing.T) {
	data := []byte("Here is some actual piece of data to be serialized, compressed, and checksummed.")
	for _, compress := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			s, err := SerializeData(data, compress, checksum)
			if err != nil {
				t.Fatalf("SerializeData(%s, %s): %v", compress, checksum, err)
			}
			got, gotCompress, err := DeserializeData(s, true)
			if err != nil {
				t.Fatalf("DeserializeData(%s, %s): %v", compress, checksum, err)
			}
			if gotCompress != compress {
				t.Errorf("round trip reported compression %s, expected %s", gotCompress, compress)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("round trip (%s, %s) altered data: got %q", compress, checksum, got)
			}
		}
	}
}

func TestSerializeBadChecksum(t *testing.T) {
	data := []byte("some bytes that will be corrupted in transit")
	s, err := SerializeData(data, Snappy, CRC32)
	if err != nil {
		t.Fatalf("SerializeData: %v", err)
	}
	s[len(s)-1] ^= 0xFF
	if _, _, err := DeserializeData(s, true); err == nil {
		t.Errorf("expected checksum failure on corrupted data, got none")
	}
}

func TestSerializeObject(t *testing.T) {
	type payload struct {
		Label   string
		Extents Point3d
		Values  []float32
	}
	object := payload{
		Label:   "densities",
		Extents: Point3d{31, 32, 33},
		Values:  []float32{0.5, -1.25, 3e7},
	}
	s, err := Serialize(object, Zstd, CRC32)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var got payload
	if err := Deserialize(s, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Label != object.Label || got.Extents != object.Extents {
		t.Errorf("round trip altered object: got %+v", got)
	}
	for i, v := range object.Values {
		if got.Values[i] != v {
			t.Errorf("value %d altered: got %f, expected %f", i, got.Values[i], v)
		}
	}
}
