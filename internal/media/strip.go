package media

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
)

var errNotJPEG = errors.New("not a JPEG stream")

// StripJPEGMetadata copies the JPEG at src to dst without its APP1 segments
// (EXIF and XMP). The compressed image data is copied byte for byte.
func StripJPEGMetadata(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(out)
	if err := stripAPP1(bufio.NewReader(in), w); err != nil {
		return fmt.Errorf("strip %s: %w", src, err)
	}
	return w.Flush()
}

func stripAPP1(r *bufio.Reader, w io.Writer) error {
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != markerSOI {
		return errNotJPEG
	}
	if _, err := w.Write(soi[:]); err != nil {
		return err
	}

	for {
		marker, err := nextMarker(r)
		if err != nil {
			return err
		}
		if marker == markerSOS {
			// Entropy-coded data follows; copy the rest verbatim.
			if _, err := w.Write([]byte{0xFF, marker}); err != nil {
				return err
			}
			_, err := io.Copy(w, r)
			return err
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return err
		}
		n := int(binary.BigEndian.Uint16(lenBuf[:]))
		if n < 2 {
			return fmt.Errorf("segment 0x%02X has invalid length %d", marker, n)
		}
		body := make([]byte, n-2)
		if _, err := io.ReadFull(r, body); err != nil {
			return err
		}
		if marker == markerAPP1 {
			continue
		}
		if _, err := w.Write([]byte{0xFF, marker}); err != nil {
			return err
		}
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
}

// nextMarker skips fill bytes and returns the next marker code.
func nextMarker(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("expected marker, found 0x%02X", b)
	}
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			return b, nil
		}
	}
}
