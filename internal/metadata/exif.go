package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	tagExifIFD     = 0x8769
	tagGPSIFD      = 0x8825
	tagOrientation = 0x0112

	maxIFDEntries = 512
)

var exifHeader = []byte("Exif\x00\x00")

// ErrNoEXIF is returned when a JPEG carries no EXIF segment.
var ErrNoEXIF = errors.New("no EXIF data")

var exifTagNames = map[uint16]string{
	0x010E: "ImageDescription",
	0x010F: "Make",
	0x0110: "Model",
	0x0112: "Orientation",
	0x011A: "XResolution",
	0x011B: "YResolution",
	0x0128: "ResolutionUnit",
	0x0131: "Software",
	0x0132: "DateTime",
	0x013B: "Artist",
	0x0213: "YCbCrPositioning",
	0x8298: "Copyright",
	0x8769: "ExifOffset",
	0x8825: "GPSInfo",
	0x829A: "ExposureTime",
	0x829D: "FNumber",
	0x8822: "ExposureProgram",
	0x8827: "ISOSpeedRatings",
	0x9000: "ExifVersion",
	0x9003: "DateTimeOriginal",
	0x9004: "DateTimeDigitized",
	0x9101: "ComponentsConfiguration",
	0x9102: "CompressedBitsPerPixel",
	0x9201: "ShutterSpeedValue",
	0x9202: "ApertureValue",
	0x9203: "BrightnessValue",
	0x9204: "ExposureBiasValue",
	0x9205: "MaxApertureValue",
	0x9207: "MeteringMode",
	0x9208: "LightSource",
	0x9209: "Flash",
	0x920A: "FocalLength",
	0x927C: "MakerNote",
	0x9286: "UserComment",
	0x9290: "SubsecTime",
	0x9291: "SubsecTimeOriginal",
	0x9292: "SubsecTimeDigitized",
	0xA000: "FlashPixVersion",
	0xA001: "ColorSpace",
	0xA002: "ExifImageWidth",
	0xA003: "ExifImageHeight",
	0xA005: "ExifInteroperabilityOffset",
	0xA217: "SensingMethod",
	0xA300: "FileSource",
	0xA301: "SceneType",
	0xA402: "ExposureMode",
	0xA403: "WhiteBalance",
	0xA404: "DigitalZoomRatio",
	0xA405: "FocalLengthIn35mmFilm",
	0xA406: "SceneCaptureType",
	0xA420: "ImageUniqueID",
	0xA432: "LensSpecification",
	0xA433: "LensMake",
	0xA434: "LensModel",
}

var gpsTagNames = map[uint16]string{
	0x00: "GPSVersionID",
	0x01: "GPSLatitudeRef",
	0x02: "GPSLatitude",
	0x03: "GPSLongitudeRef",
	0x04: "GPSLongitude",
	0x05: "GPSAltitudeRef",
	0x06: "GPSAltitude",
	0x07: "GPSTimeStamp",
	0x08: "GPSSatellites",
	0x09: "GPSStatus",
	0x0A: "GPSMeasureMode",
	0x0B: "GPSDOP",
	0x0C: "GPSSpeedRef",
	0x0D: "GPSSpeed",
	0x0E: "GPSTrackRef",
	0x0F: "GPSTrack",
	0x10: "GPSImgDirectionRef",
	0x11: "GPSImgDirection",
	0x12: "GPSMapDatum",
	0x1B: "GPSProcessingMethod",
	0x1D: "GPSDateStamp",
}

// hybridTags are UNDEFINED-typed tags that hold digits stored either as ASCII
// or as raw byte values. intTags among them are exposed as integers.
var (
	hybridTags = map[string]bool{
		"ExifVersion":             true,
		"FlashPixVersion":         true,
		"ComponentsConfiguration": true,
		"GPSAltitudeRef":          true,
		"SceneType":               true,
	}
	intTags = map[string]bool{
		"GPSAltitudeRef": true,
		"SceneType":      true,
	}
)

// typeSizes is the byte width of each TIFF field type, indexed by type code.
var typeSizes = [...]int{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8, 4}

// ReadJPEGEXIF returns the APP1 EXIF payload of a JPEG stream, including the
// "Exif\0\0" header. It stops at the start of scan data.
func ReadJPEGEXIF(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		return nil, err
	}
	if soi[0] != 0xFF || soi[1] != 0xD8 {
		return nil, errors.New("not a JPEG stream")
	}
	for {
		marker, err := nextMarker(br)
		if err != nil {
			return nil, err
		}
		switch {
		case marker == 0xDA || marker == 0xD9:
			return nil, ErrNoEXIF
		case marker >= 0xD0 && marker <= 0xD7, marker == 0x01:
			continue
		}
		var lenBuf [2]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, err
		}
		length := int(binary.BigEndian.Uint16(lenBuf[:])) - 2
		if length < 0 {
			return nil, fmt.Errorf("bad JPEG segment length for marker %#x", marker)
		}
		if marker != 0xE1 {
			if _, err := br.Discard(length); err != nil {
				return nil, err
			}
			continue
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, err
		}
		if bytes.HasPrefix(payload, exifHeader) {
			return payload, nil
		}
	}
}

func nextMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("expected JPEG marker, found %#x", b)
	}
	for b == 0xFF {
		if b, err = br.ReadByte(); err != nil {
			return 0, err
		}
	}
	return b, nil
}

// ParseEXIF decodes an EXIF blob, with or without the "Exif\0\0" header,
// into named tags. IFD0 and the Exif sub-IFD are merged into the top level;
// GPS tags are nested under "GPSInfo". Unknown tags are dropped.
func ParseEXIF(raw []byte) (map[string]any, error) {
	data := bytes.TrimPrefix(raw, exifHeader)
	if len(data) < 8 {
		return nil, errors.New("exif: truncated header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("exif: bad byte order %q", data[:2])
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, errors.New("exif: bad TIFF magic")
	}

	w := ifdWalker{data: data, order: order}
	ifd0, err := w.read(order.Uint32(data[4:8]))
	if err != nil {
		return nil, err
	}

	tags := w.named(ifd0, exifTagNames)
	if off, ok := w.pointer(ifd0[tagExifIFD]); ok {
		sub, err := w.read(off)
		if err != nil {
			return nil, fmt.Errorf("exif sub-IFD: %w", err)
		}
		for k, v := range w.named(sub, exifTagNames) {
			tags[k] = v
		}
	}
	if off, ok := w.pointer(ifd0[tagGPSIFD]); ok {
		gps, err := w.read(off)
		if err != nil {
			return nil, fmt.Errorf("gps sub-IFD: %w", err)
		}
		tags["GPSInfo"] = w.named(gps, gpsTagNames)
	}
	return tags, nil
}

// OrientationOf returns the Orientation tag from parsed EXIF, or 0.
func OrientationOf(tags map[string]any) int {
	if v, ok := tags["Orientation"].(int); ok && v >= 1 && v <= 8 {
		return v
	}
	return 0
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type ifdWalker struct {
	data  []byte
	order binary.ByteOrder
}

func (w ifdWalker) read(offset uint32) (map[uint16]ifdEntry, error) {
	if int64(offset)+2 > int64(len(w.data)) {
		return nil, fmt.Errorf("exif: IFD offset %d out of range", offset)
	}
	n := int(w.order.Uint16(w.data[offset:]))
	if n > maxIFDEntries {
		return nil, fmt.Errorf("exif: IFD claims %d entries", n)
	}
	start := int(offset) + 2
	if start+n*12 > len(w.data) {
		return nil, errors.New("exif: IFD entries truncated")
	}

	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := w.data[start+i*12 : start+i*12+12]
		tag := w.order.Uint16(e[0:2])
		typ := w.order.Uint16(e[2:4])
		count := w.order.Uint32(e[4:8])
		if int(typ) >= len(typeSizes) || typ == 0 {
			continue
		}
		size := int64(typeSizes[typ]) * int64(count)
		var raw []byte
		if size <= 4 {
			raw = e[8 : 8+size]
		} else {
			off := int64(w.order.Uint32(e[8:12]))
			if off+size > int64(len(w.data)) {
				continue
			}
			raw = w.data[off : off+size]
		}
		entries[tag] = ifdEntry{typ: typ, count: count, raw: raw}
	}
	return entries, nil
}

func (w ifdWalker) named(entries map[uint16]ifdEntry, names map[uint16]string) map[string]any {
	out := make(map[string]any, len(entries))
	for tag, e := range entries {
		name, ok := names[tag]
		if !ok {
			continue
		}
		out[name] = w.value(name, e)
	}
	return out
}

func (w ifdWalker) value(name string, e ifdEntry) any {
	switch e.typ {
	case 2: // ASCII
		return strings.TrimRight(string(e.raw), "\x00 ")
	case 7: // UNDEFINED
		if hybridTags[name] {
			return decodeHybrid(name, e.raw)
		}
		return append([]byte(nil), e.raw...)
	case 5, 10: // RATIONAL, SRATIONAL
		vals := make([]float64, e.count)
		for i := range vals {
			num, den := w.order.Uint32(e.raw[i*8:]), w.order.Uint32(e.raw[i*8+4:])
			if e.typ == 10 {
				vals[i] = ratio(float64(int32(num)), float64(int32(den)))
			} else {
				vals[i] = ratio(float64(num), float64(den))
			}
		}
		return single(vals)
	case 11: // FLOAT
		vals := make([]float64, e.count)
		for i := range vals {
			vals[i] = float64(math.Float32frombits(w.order.Uint32(e.raw[i*4:])))
		}
		return single(vals)
	case 12: // DOUBLE
		vals := make([]float64, e.count)
		for i := range vals {
			vals[i] = math.Float64frombits(w.order.Uint64(e.raw[i*8:]))
		}
		return single(vals)
	default: // BYTE, SHORT, LONG and their signed forms
		vals := make([]int, e.count)
		for i := range vals {
			vals[i] = w.integer(e.typ, e.raw, i)
		}
		return single(vals)
	}
}

func (w ifdWalker) integer(typ uint16, raw []byte, i int) int {
	switch typ {
	case 1:
		return int(raw[i])
	case 6:
		return int(int8(raw[i]))
	case 3:
		return int(w.order.Uint16(raw[i*2:]))
	case 8:
		return int(int16(w.order.Uint16(raw[i*2:])))
	case 4:
		return int(w.order.Uint32(raw[i*4:]))
	case 9:
		return int(int32(w.order.Uint32(raw[i*4:])))
	case 13:
		return int(w.order.Uint32(raw[i*4:]))
	}
	return 0
}

// decodeHybrid turns byte values 0-8 into the matching ASCII digits, so
// "\x00\x02\x02\x01" and "0221" both read as "0221".
func decodeHybrid(name string, raw []byte) any {
	b := make([]byte, len(raw))
	for i, c := range raw {
		if c <= 8 {
			c += '0'
		}
		b[i] = c
	}
	s := string(b)
	if intTags[name] {
		n := 0
		for _, c := range s {
			if c < '0' || c > '9' {
				return s
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	return s
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func single[T any](vals []T) any {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}

func (w ifdWalker) pointer(e ifdEntry) (uint32, bool) {
	if (e.typ != 4 && e.typ != 13) || len(e.raw) < 4 {
		return 0, false
	}
	return w.order.Uint32(e.raw), true
}
