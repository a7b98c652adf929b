package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

type testEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortEntry(order binary.ByteOrder, tag uint16, v uint16) testEntry {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return testEntry{tag: tag, typ: 3, count: 1, data: b}
}

func asciiEntry(tag uint16, s string) testEntry {
	b := append([]byte(s), 0)
	return testEntry{tag: tag, typ: 2, count: uint32(len(b)), data: b}
}

func undefinedEntry(tag uint16, b []byte) testEntry {
	return testEntry{tag: tag, typ: 7, count: uint32(len(b)), data: b}
}

func rationalEntry(order binary.ByteOrder, tag uint16, pairs ...[2]uint32) testEntry {
	b := make([]byte, 8*len(pairs))
	for i, p := range pairs {
		order.PutUint32(b[i*8:], p[0])
		order.PutUint32(b[i*8+4:], p[1])
	}
	return testEntry{tag: tag, typ: 5, count: uint32(len(pairs)), data: b}
}

func pointerEntry(tag uint16) testEntry {
	return testEntry{tag: tag, typ: 4, count: 1, data: make([]byte, 4)}
}

// buildTIFF lays out IFD0 followed by the optional Exif and GPS IFDs. Pointer
// entries for 0x8769 and 0x8825 are filled with the offsets of ifds[1] and
// ifds[2].
func buildTIFF(order binary.ByteOrder, ifds ...[]testEntry) []byte {
	sizes := make([]int, len(ifds))
	offsets := make([]int, len(ifds))
	next := 8
	for i, ifd := range ifds {
		size := 2 + 12*len(ifd) + 4
		for _, e := range ifd {
			if len(e.data) > 4 {
				size += len(e.data)
			}
		}
		sizes[i] = size
		offsets[i] = next
		next += size
	}

	buf := make([]byte, next)
	if order == binary.LittleEndian {
		copy(buf, "II")
	} else {
		copy(buf, "MM")
	}
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], uint32(offsets[0]))

	for i, ifd := range ifds {
		pos := offsets[i]
		order.PutUint16(buf[pos:], uint16(len(ifd)))
		dataPos := pos + 2 + 12*len(ifd) + 4
		for j, e := range ifd {
			ep := pos + 2 + 12*j
			order.PutUint16(buf[ep:], e.tag)
			order.PutUint16(buf[ep+2:], e.typ)
			order.PutUint32(buf[ep+4:], e.count)
			switch {
			case e.tag == tagExifIFD && len(ifds) > 1:
				order.PutUint32(buf[ep+8:], uint32(offsets[1]))
			case e.tag == tagGPSIFD && len(ifds) > 2:
				order.PutUint32(buf[ep+8:], uint32(offsets[2]))
			case len(e.data) <= 4:
				copy(buf[ep+8:], e.data)
			default:
				order.PutUint32(buf[ep+8:], uint32(dataPos))
				copy(buf[dataPos:], e.data)
				dataPos += len(e.data)
			}
		}
	}
	return buf
}

func sampleEXIF(order binary.ByteOrder) []byte {
	ifd0 := []testEntry{
		asciiEntry(0x010F, "Acme"),
		asciiEntry(0x0110, "PetCam 3000"),
		shortEntry(order, tagOrientation, 6),
		pointerEntry(tagExifIFD),
		pointerEntry(tagGPSIFD),
	}
	exif := []testEntry{
		undefinedEntry(0x9000, []byte("0221")),
		undefinedEntry(0x9101, []byte{1, 2, 3, 0}),
		undefinedEntry(0xA000, []byte{0, 1, 0, 0}),
		undefinedEntry(0x927C, []byte{0xde, 0xad, 0xbe, 0xef, 0x99}),
		rationalEntry(order, 0x829D, [2]uint32{28, 10}),
		asciiEntry(0x9003, "2016:01:02 03:04:05"),
	}
	gps := []testEntry{
		asciiEntry(0x01, "N"),
		rationalEntry(order, 0x02, [2]uint32{40, 1}, [2]uint32{26, 1}, [2]uint32{4630, 100}),
		undefinedEntry(0x05, []byte{0}),
	}
	return append(append([]byte(nil), exifHeader...), buildTIFF(order, ifd0, exif, gps)...)
}

func TestParseEXIF(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			tags, err := ParseEXIF(sampleEXIF(order))
			if err != nil {
				t.Fatalf("ParseEXIF() error = %v", err)
			}

			checks := map[string]any{
				"Make":                    "Acme",
				"Model":                   "PetCam 3000",
				"Orientation":             6,
				"ExifVersion":             "0221",
				"ComponentsConfiguration": "1230",
				"FlashPixVersion":         "0100",
				"FNumber":                 2.8,
				"DateTimeOriginal":        "2016:01:02 03:04:05",
			}
			for name, want := range checks {
				if got := tags[name]; !reflect.DeepEqual(got, want) {
					t.Errorf("%s = %#v, want %#v", name, got, want)
				}
			}

			if mn, ok := tags["MakerNote"].([]byte); !ok || !bytes.Equal(mn, []byte{0xde, 0xad, 0xbe, 0xef, 0x99}) {
				t.Errorf("MakerNote = %#v, want raw bytes", tags["MakerNote"])
			}

			gps, ok := tags["GPSInfo"].(map[string]any)
			if !ok {
				t.Fatalf("GPSInfo = %#v, want nested map", tags["GPSInfo"])
			}
			if gps["GPSLatitudeRef"] != "N" {
				t.Errorf("GPSLatitudeRef = %#v", gps["GPSLatitudeRef"])
			}
			if got := gps["GPSAltitudeRef"]; got != 0 {
				t.Errorf("GPSAltitudeRef = %#v, want int 0", got)
			}
			if lat, ok := gps["GPSLatitude"].([]float64); !ok || len(lat) != 3 || lat[0] != 40 || lat[2] != 46.3 {
				t.Errorf("GPSLatitude = %#v", gps["GPSLatitude"])
			}
			if OrientationOf(tags) != 6 {
				t.Errorf("OrientationOf() = %d, want 6", OrientationOf(tags))
			}
		})
	}
}

func TestParseEXIFWithoutHeader(t *testing.T) {
	raw := buildTIFF(binary.BigEndian, []testEntry{shortEntry(binary.BigEndian, tagOrientation, 3)})
	tags, err := ParseEXIF(raw)
	if err != nil {
		t.Fatalf("ParseEXIF() error = %v", err)
	}
	if OrientationOf(tags) != 3 {
		t.Errorf("OrientationOf() = %d, want 3", OrientationOf(tags))
	}
}

func TestParseEXIFMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad byte order", data: []byte("XX\x00\x2a\x00\x00\x00\x08")},
		{name: "bad magic", data: []byte("II\x2b\x00\x08\x00\x00\x00")},
		{name: "ifd out of range", data: []byte("II\x2a\x00\xff\x00\x00\x00")},
		{name: "entries truncated", data: []byte("II\x2a\x00\x08\x00\x00\x00\x05\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEXIF(tt.data); err == nil {
				t.Error("ParseEXIF() expected error")
			}
		})
	}
}

func TestOrientationOfIgnoresOutOfRange(t *testing.T) {
	if got := OrientationOf(map[string]any{"Orientation": 9}); got != 0 {
		t.Errorf("OrientationOf(9) = %d, want 0", got)
	}
	if got := OrientationOf(nil); got != 0 {
		t.Errorf("OrientationOf(nil) = %d, want 0", got)
	}
}

func TestReadJPEGEXIF(t *testing.T) {
	payload := sampleEXIF(binary.LittleEndian)
	data := withEXIF(t, encodeJPEG(t, 8, 4), payload)

	got, err := ReadJPEGEXIF(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadJPEGEXIF() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("ReadJPEGEXIF() returned a different payload")
	}

	if _, err := ReadJPEGEXIF(bytes.NewReader(encodeJPEG(t, 8, 4))); !errors.Is(err, ErrNoEXIF) {
		t.Errorf("plain JPEG error = %v, want ErrNoEXIF", err)
	}
	if _, err := ReadJPEGEXIF(bytes.NewReader([]byte("GIF89a"))); err == nil {
		t.Error("non-JPEG input should fail")
	}
}
