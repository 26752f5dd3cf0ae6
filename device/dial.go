package device

import (
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/tarm/serial"
)

// Dialer opens the raw byte stream to the controller. Every Connect gets
// a fresh stream; a failed one is closed and never reused.
type Dialer interface {
	Dial() (io.ReadWriteCloser, error)
}

// TCPDialer connects to the controller's network interface.
type TCPDialer struct {
	Host    string
	Port    int
	Timeout time.Duration // dial timeout, defaults to ConnectTimeout
}

func (d TCPDialer) Dial() (io.ReadWriteCloser, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = ConnectTimeout
	}
	return net.DialTimeout("tcp", net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), timeout)
}

// SerialDialer opens the legacy direct serial link to the controller.
// Firmware on this link terminates lines with a bare carriage return, so
// pair it with wire.CR on the client.
type SerialDialer struct {
	Name        string
	Baud        int           // defaults to 9600
	ReadTimeout time.Duration // defaults to DefaultTimeout
}

func (d SerialDialer) Dial() (io.ReadWriteCloser, error) {
	baud := d.Baud
	if baud == 0 {
		baud = 9600
	}
	timeout := d.ReadTimeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	port, err := serial.OpenPort(&serial.Config{Name: d.Name, Baud: baud, ReadTimeout: timeout})
	if err != nil {
		return nil, err
	}
	return serialStream{port}, nil
}

// serialStream translates the port's timeout signalling. The serial
// package reports an expired ReadTimeout as a zero-byte EOF, which would
// otherwise be indistinguishable from a severed link.
type serialStream struct {
	*serial.Port
}

func (s serialStream) Read(p []byte) (int, error) {
	n, err := s.Port.Read(p)
	if n == 0 && err == io.EOF {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}
