// Package transport opens the byte streams the pilot talks over: stdio, a
// serial line to the vehicle bridge, or a plain file or named pipe.
//
// An endpoint is written as one of
//
//	-                                   stdin or stdout
//	serial:/dev/ttyUSB0?baud=115200     serial port, optional line settings
//	/path/to/file                       file or fifo
//
// Serial query keys are baud, data, stop and parity.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// Stdio is the endpoint for the process's standard streams.
const Stdio = "-"

const serialScheme = "serial:"

// ErrEmptyEndpoint is returned for a blank endpoint string.
var ErrEmptyEndpoint = errors.New("transport: empty endpoint")

// SerialPorter is the subset of a serial port the pilot needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener opens a serial port. Tests replace openSerial with a fake.
type SerialPortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

var openSerial SerialPortOpener = func(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// Kind says which sort of stream an Endpoint names.
type Kind int

const (
	KindStdio Kind = iota
	KindSerial
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindStdio:
		return "stdio"
	case KindSerial:
		return "serial"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Endpoint is a parsed endpoint string.
type Endpoint struct {
	Kind    Kind
	Path    string
	Options PortOptions
}

func (e Endpoint) String() string {
	switch e.Kind {
	case KindStdio:
		return Stdio
	case KindSerial:
		return serialScheme + e.Path
	}
	return e.Path
}

// ParseEndpoint parses s. Serial line settings are validated and normalised.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Endpoint{}, ErrEmptyEndpoint
	case s == Stdio:
		return Endpoint{Kind: KindStdio}, nil
	case !strings.HasPrefix(s, serialScheme):
		return Endpoint{Kind: KindFile, Path: s}, nil
	}

	path, query, _ := strings.Cut(strings.TrimPrefix(s, serialScheme), "?")
	if path == "" {
		return Endpoint{}, fmt.Errorf("transport: serial endpoint %q has no device", s)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: bad serial options in %q: %w", s, err)
	}

	var opts PortOptions
	ints := map[string]*int{
		"baud": &opts.BaudRate,
		"data": &opts.DataBits,
		"stop": &opts.StopBits,
	}
	for key := range values {
		if key == "parity" {
			opts.Parity = values.Get(key)
			continue
		}
		dst, ok := ints[key]
		if !ok {
			return Endpoint{}, fmt.Errorf("transport: unknown serial option %q", key)
		}
		n, err := strconv.Atoi(values.Get(key))
		if err != nil {
			return Endpoint{}, fmt.Errorf("transport: serial option %s: %w", key, err)
		}
		*dst = n
	}

	opts, err = opts.Normalise()
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Kind: KindSerial, Path: path, Options: opts}, nil
}

// OpenInput opens the endpoint s for reading.
func OpenInput(s string) (io.ReadCloser, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	switch ep.Kind {
	case KindStdio:
		return io.NopCloser(os.Stdin), nil
	case KindSerial:
		return ep.openSerial()
	}
	return os.Open(ep.Path)
}

// OpenOutput opens the endpoint s for writing. Files are truncated.
func OpenOutput(s string) (io.WriteCloser, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	switch ep.Kind {
	case KindStdio:
		return nopWriteCloser{os.Stdout}, nil
	case KindSerial:
		return ep.openSerial()
	}
	return os.OpenFile(ep.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// OpenDuplex opens one stream for both directions. Used when input and output
// name the same serial port, which can only be opened once.
func OpenDuplex(s string) (io.ReadWriteCloser, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	if ep.Kind != KindSerial {
		return nil, fmt.Errorf("transport: %s endpoint %q cannot be shared", ep.Kind, s)
	}
	return ep.openSerial()
}

func (e Endpoint) openSerial() (SerialPorter, error) {
	mode, err := e.Options.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := openSerial(e.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", e.Path, err)
	}
	return port, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
