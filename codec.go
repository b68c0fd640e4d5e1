package sphinxadapt

// S3 binary container codec (C1). Grounded on the teacher's own raw binary
// framing in its Model.WriteBinary/unsafeParseBinary (magic-string check,
// explicit header, body, alignment) and on its word/line scanning in
// arpa.go (isSpace/tokenSplit), adapted from line-splitting to pure
// whitespace-token-splitting since an S3 header has no line structure.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
)

const s3Magic uint32 = 0x11223344

// HeaderField is one "key value" pair from an S3 header, kept in the order
// it was read (or is to be written) since some readers care about field
// order even though the format itself does not require it.
type HeaderField struct {
	Key, Value string
}

// S3Reader is a stateful reader over one S3 binary file: it carries the
// endianness detected from the magic word and a running checksum updated
// by every ReadInt/ReadFloat call, the same per-reader checksum field the
// spec requires ("reset before each file section").
type S3Reader struct {
	f        *os.File
	br       *bufio.Reader
	Props    map[string]string
	Order    []string
	swap     bool
	checksum uint32
}

// OpenS3Header opens path, reads its whitespace-delimited "key value ...
// endhdr" header, then reads the 4-byte magic and determines endianness.
// It returns ErrCorruptFile if neither the native nor the byte-swapped
// reading of the magic word matches s3Magic.
func OpenS3Header(path string) (*S3Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: opening: %w", path, wrapIo(err))
	}
	r := &S3Reader{f: f, br: bufio.NewReader(f), Props: map[string]string{}}

	for {
		key, err := r.readWord()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: reading header: %w", path, err)
		}
		if key == "endhdr" {
			break
		}
		val, err := r.readWord()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: reading header value for %q: %w", path, key, err)
		}
		r.Props[key] = val
		r.Order = append(r.Order, key)
	}

	var raw [4]byte
	if _, err := io.ReadFull(r.br, raw[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: reading magic: %w", path, wrapIo(err))
	}
	native := binary.NativeEndian.Uint32(raw[:])
	switch {
	case native == s3Magic:
		r.swap = false
	case bits.ReverseBytes32(native) == s3Magic:
		r.swap = true
	default:
		f.Close()
		return nil, fmt.Errorf("%s: bad magic: %w", path, ErrCorruptFile)
	}
	return r, nil
}

// Close releases the underlying file handle. Safe to call once, on every
// exit path, per the resource model.
func (r *S3Reader) Close() error {
	return r.f.Close()
}

// readWord reads one whitespace-delimited ASCII token, skipping leading
// whitespace. It returns io.EOF as the end-of-stream sentinel.
func (r *S3Reader) readWord() (string, error) {
	var b byte
	var err error
	for {
		b, err = r.br.ReadByte()
		if err != nil {
			return "", err
		}
		if !isHeaderSpace(b) {
			break
		}
	}
	buf := []byte{b}
	for {
		b, err = r.br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if isHeaderSpace(b) {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func isHeaderSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// rawWord reads one 4-byte word, corrects its endianness, and folds it
// into the running checksum. Every typed read (ReadInt, ReadFloat) goes
// through this so the checksum stays consistent regardless of value type,
// matching the spec's "the magic word itself is not included in the
// checksum" note (rawWord is only ever called after the magic has already
// been consumed).
func (r *S3Reader) rawWord() (uint32, error) {
	var raw [4]byte
	if _, err := io.ReadFull(r.br, raw[:]); err != nil {
		return 0, wrapIo(err)
	}
	w := binary.NativeEndian.Uint32(raw[:])
	if r.swap {
		w = bits.ReverseBytes32(w)
	}
	r.checksum = (((r.checksum << 20) | (r.checksum >> 12)) + w) & 0xFFFFFFFF
	return w, nil
}

// ReadInt reads one 4-byte little/big/native-corrected signed integer.
func (r *S3Reader) ReadInt() (int32, error) {
	w, err := r.rawWord()
	if err != nil {
		return 0, err
	}
	return int32(w), nil
}

// ReadFloat reads one 4-byte IEEE-754 float.
func (r *S3Reader) ReadFloat() (float32, error) {
	w, err := r.rawWord()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(w), nil
}

// ReadFloatArray reads n repeated floats.
func (r *S3Reader) ReadFloatArray(n int) ([]float32, error) {
	out := make([]float32, n)
	for i := range out {
		v, err := r.ReadFloat()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ValidateChecksum reads the trailing checksum word, if the header declared
// chksum0=yes, and compares it against the running checksum accumulated by
// every prior typed read. It is a no-op (and returns nil) when the header
// did not declare chksum0.
func (r *S3Reader) ValidateChecksum() error {
	if r.Props["chksum0"] != "yes" {
		return nil
	}
	var raw [4]byte
	if _, err := io.ReadFull(r.br, raw[:]); err != nil {
		return fmt.Errorf("reading trailing checksum: %w", wrapIo(err))
	}
	w := binary.NativeEndian.Uint32(raw[:])
	if r.swap {
		w = bits.ReverseBytes32(w)
	}
	if w != r.checksum {
		return fmt.Errorf("declared %#x, computed %#x: %w", w, r.checksum, ErrChecksumMismatch)
	}
	return nil
}

// S3Writer writes an S3 binary file in the host's native byte order, always
// with chksum0=yes and a trailing checksum, the format Applier uses for the
// adapted means file.
type S3Writer struct {
	f        *os.File
	bw       *bufio.Writer
	checksum uint32
}

// CreateS3Writer creates path and writes the header fields (in order),
// "endhdr", and the native-order magic word.
func CreateS3Writer(path string, fields []HeaderField) (*S3Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%s: creating: %w", path, wrapIo(err))
	}
	w := &S3Writer{f: f, bw: bufio.NewWriter(f)}
	for _, kv := range fields {
		fmt.Fprintf(w.bw, "%s %s\n", kv.Key, kv.Value)
	}
	fmt.Fprintf(w.bw, "endhdr\n")
	var raw [4]byte
	binary.NativeEndian.PutUint32(raw[:], s3Magic)
	if _, err := w.bw.Write(raw[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: writing magic: %w", path, wrapIo(err))
	}
	return w, nil
}

func (w *S3Writer) rawWord(v uint32) error {
	var raw [4]byte
	binary.NativeEndian.PutUint32(raw[:], v)
	if _, err := w.bw.Write(raw[:]); err != nil {
		return wrapIo(err)
	}
	w.checksum = (((w.checksum << 20) | (w.checksum >> 12)) + v) & 0xFFFFFFFF
	return nil
}

// WriteInt writes one 4-byte signed integer.
func (w *S3Writer) WriteInt(v int32) error {
	return w.rawWord(uint32(v))
}

// WriteFloat writes one 4-byte IEEE-754 float.
func (w *S3Writer) WriteFloat(v float32) error {
	return w.rawWord(math.Float32bits(v))
}

// WriteFloatArray writes n floats in order.
func (w *S3Writer) WriteFloatArray(vs []float32) error {
	for _, v := range vs {
		if err := w.WriteFloat(v); err != nil {
			return err
		}
	}
	return nil
}

// FinishChecksum writes the running checksum as the trailing int, then
// flushes and closes the file. No further writes are valid after this.
func (w *S3Writer) FinishChecksum() error {
	var raw [4]byte
	binary.NativeEndian.PutUint32(raw[:], w.checksum)
	if _, err := w.bw.Write(raw[:]); err != nil {
		w.f.Close()
		return wrapIo(err)
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return wrapIo(err)
	}
	return w.f.Close()
}

func wrapIo(err error) error {
	return fmt.Errorf("%w: %v", ErrIoError, err)
}
