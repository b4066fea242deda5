package hwfrontend

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// UnixSocketTransport speaks the framed protocol over a pair of
// SOCK_SEQPACKET AF_UNIX sockets, one inbound and one outbound, mirroring
// original_source's GpioHwSocket (`_in_socket`, `_out_socket`) but built
// directly on golang.org/x/sys/unix rather than net.UnixConn, since
// SOCK_SEQPACKET framing (one Write == one datagram == one frame) has no
// equivalent in net's Unix socket support.
type UnixSocketTransport struct {
	inPath, outPath string
	inFD, outFD     int
	timeout         time.Duration
}

func NewUnixSocketTransport(inPath, outPath string) *UnixSocketTransport {
	return &UnixSocketTransport{inPath: inPath, outPath: outPath, timeout: readWriteTimeout, inFD: -1, outFD: -1}
}

func (t *UnixSocketTransport) Open() error {
	inFD, err := connectSeqpacket(t.inPath)
	if err != nil {
		return errors.Wrapf(err, "connecting inbound socket %s", t.inPath)
	}
	outFD, err := connectSeqpacket(t.outPath)
	if err != nil {
		unix.Close(inFD)
		return errors.Wrapf(err, "connecting outbound socket %s", t.outPath)
	}
	t.inFD, t.outFD = inFD, outFD
	return t.applyReadTimeout()
}

func connectSeqpacket(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (t *UnixSocketTransport) applyReadTimeout() error {
	if t.inFD < 0 {
		return nil
	}
	tv := unix.NsecToTimeval(t.timeout.Nanoseconds())
	return unix.SetsockoptTimeval(t.inFD, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (t *UnixSocketTransport) SetReadTimeout(d time.Duration) error {
	t.timeout = d
	return t.applyReadTimeout()
}

func (t *UnixSocketTransport) Read(buf []byte) (int, error) {
	if t.inFD < 0 {
		return 0, errors.New("unix socket transport not open")
	}
	n, err := unix.Read(t.inFD, buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errors.Errorf("short read: got %d bytes, want %d", n, len(buf))
	}
	return n, nil
}

func (t *UnixSocketTransport) Write(buf []byte) (int, error) {
	if t.outFD < 0 {
		return 0, errors.New("unix socket transport not open")
	}
	return unix.Write(t.outFD, buf)
}

func (t *UnixSocketTransport) Close() error {
	if t.inFD >= 0 {
		unix.Close(t.inFD)
		t.inFD = -1
	}
	if t.outFD >= 0 {
		unix.Close(t.outFD)
		t.outFD = -1
	}
	return nil
}
