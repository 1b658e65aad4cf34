package payload

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/avc/internal/monitoring"
)

var (
	// ErrProtocol reports a bad magic number or a type the reader did not ask
	// for. The stream cannot resynchronise after it.
	ErrProtocol = errors.New("payload protocol error")
	// ErrEOF reports that the stream closed before a full frame arrived.
	ErrEOF = errors.New("payload stream closed")
	// ErrIO wraps any other read failure.
	ErrIO = errors.New("payload read failed")
	// ErrShortWrite reports a header or body that was not written in full.
	ErrShortWrite = errors.New("payload short write")
)

// Reader decodes frames from a byte stream. It is not safe for concurrent use.
type Reader struct {
	r    io.Reader
	hdr  [HeaderSize]byte
	body []byte
}

// NewReader returns a Reader that pulls frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, body: make([]byte, PairSize)}
}

// ReadFrame reads one frame into f. The header is validated before any body
// byte is consumed: a bad magic or a type with no bit in common with expect
// fails with ErrProtocol and leaves the body unread. Partial body reads are
// retried until the body is complete.
func (pr *Reader) ReadFrame(f *Frame, expect Type) error {
	if err := readFull(pr.r, pr.hdr[:]); err != nil {
		return fmt.Errorf("header: %w", err)
	}

	magic, t := decodeHeader(pr.hdr[:])
	if magic != Magic {
		monitoring.Badf("Incorrect magic number got: %x expected %x", magic, Magic)
		return fmt.Errorf("%w: magic 0x%08x", ErrProtocol, magic)
	}
	if t&expect == 0 {
		monitoring.Badf("Incompatible payload type %s / %s", t, expect)
		return fmt.Errorf("%w: got %s, want %s", ErrProtocol, t, expect)
	}
	size, err := t.BodySize()
	if err != nil {
		return err
	}

	body := pr.body[:size]
	if err := readFull(pr.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %w", ErrEOF, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("%s body: %w", t, err)
	}
	f.Type = t
	decodeBody(body, f)
	return nil
}

// EndOfStream reports whether err is a clean close on a frame boundary, as
// opposed to a frame cut short.
func EndOfStream(err error) bool {
	return errors.Is(err, ErrEOF) && errors.Is(err, io.EOF)
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrEOF, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// Writer encodes frames onto a byte stream. It is not safe for concurrent use.
type Writer struct {
	w    io.Writer
	hdr  [HeaderSize]byte
	body []byte
}

// NewWriter returns a Writer that emits frames to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, body: make([]byte, PairSize)}
}

// WriteFrame writes the header and then the body, each as one write. A short
// or failed write leaves the stream desynchronised and returns ErrShortWrite.
func (pw *Writer) WriteFrame(f *Frame) error {
	size, err := f.Type.BodySize()
	if err != nil {
		return err
	}

	encodeHeader(pw.hdr[:], f.Type)
	if err := writeAll(pw.w, pw.hdr[:]); err != nil {
		return fmt.Errorf("header: %w", err)
	}

	body := pw.body[:size]
	encodeBody(body, f)
	if err := writeAll(pw.w, body); err != nil {
		return fmt.Errorf("%s body: %w", f.Type, err)
	}
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return fmt.Errorf("%w: wrote %d/%d bytes: %w", ErrShortWrite, n, len(b), err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: wrote %d/%d bytes: %w", ErrShortWrite, n, len(b), io.ErrShortWrite)
	}
	return nil
}
