package hwfrontend

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// SerialTransport wraps a serial port, matching the teacher's
// comm.serialWorker open pattern (github.com/tarm/serial.OpenPort) but
// adapted to fixed-size binary frames instead of newline-delimited text.
type SerialTransport struct {
	portName string
	baud     int
	conn     *serial.Port
}

func NewSerialTransport(portName string, baud int) *SerialTransport {
	if baud == 0 {
		baud = 115200
	}
	return &SerialTransport{portName: portName, baud: baud}
}

func (t *SerialTransport) Open() error {
	conn, err := serial.OpenPort(&serial.Config{
		Name:        t.portName,
		Baud:        t.baud,
		ReadTimeout: readWriteTimeout,
	})
	if err != nil {
		return errors.Wrapf(err, "opening serial port %s", t.portName)
	}
	t.conn = conn
	return nil
}

func (t *SerialTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *SerialTransport) SetReadTimeout(d time.Duration) error {
	// github.com/tarm/serial applies ReadTimeout at OpenPort time only;
	// re-opening on every timeout change would drop the connection, so
	// this transport keeps the timeout fixed at readWriteTimeout and
	// treats SetReadTimeout as advisory.
	return nil
}

// serialTimeoutErr is synthesized for the github.com/tarm/serial idle case:
// on Linux the underlying VTIME-based read returns (0, nil) when
// ReadTimeout elapses with nothing received, not an error satisfying
// Timeout(). io.ReadFull treats (0, nil) as "try again" and loops forever
// on an idle line, so Read below turns that specific case into a proper
// timeout error itself rather than delegating straight to io.ReadFull.
type serialTimeoutErr struct{}

func (serialTimeoutErr) Error() string { return "serial read timed out" }
func (serialTimeoutErr) Timeout() bool { return true }

func (t *SerialTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.New("serial transport not open")
	}
	total := 0
	for total < len(buf) {
		n, err := t.conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, serialTimeoutErr{}
		}
	}
	return total, nil
}

func (t *SerialTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.New("serial transport not open")
	}
	return t.conn.Write(buf)
}
