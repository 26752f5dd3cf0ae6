package sim

import (
	"bufio"
	"io/ioutil"
	"log"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencalib/cbpctl/wire"
)

func newTestServer(t *testing.T) (*Server, net.Conn) {
	s := New(log.New(ioutil.Discard, "", 0), wire.CRLF)
	require.NoError(t, s.Listen("127.0.0.1:0"))
	t.Cleanup(func() { s.Close() })

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func roundTrip(t *testing.T, conn net.Conn, cmd string) string {
	t.Helper()
	_, err := conn.Write([]byte(cmd + "\r\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func TestServerQueries(t *testing.T) {
	_, conn := newTestServer(t)

	az := roundTrip(t, conn, "az=?")
	v, err := strconv.ParseFloat(az, 64)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, v)

	assert.Equal(t, "1", roundTrip(t, conn, "msk=?"))
	assert.Equal(t, "0.0", roundTrip(t, conn, "wdpanic=?"))
	assert.Equal(t, "0.0", roundTrip(t, conn, "autopark=?"))
	assert.Equal(t, "0.0", roundTrip(t, conn, "AAstat=?"))
	assert.Equal(t, "0.0", roundTrip(t, conn, "park=?"))
	assert.Equal(t, "0", roundTrip(t, conn, "foc=?"))
}

func TestServerSetClamps(t *testing.T) {
	s, conn := newTestServer(t)

	// above the 13000 micron limit: saturates, never errors
	assert.Equal(t, ":", roundTrip(t, conn, "new_foc=20000"))
	assert.Equal(t, 13000.0, s.Encoders.Focus.Target())

	assert.Equal(t, ":", roundTrip(t, conn, "new_alt=-100.0"))
	assert.Equal(t, -69.0, s.Encoders.Elevation.Target())
}

func TestServerMaskAndRotation(t *testing.T) {
	s, conn := newTestServer(t)
	s.Encoders.MaskSelect.Speed = 10000
	s.Encoders.MaskRotate.Speed = 100000

	assert.Equal(t, ":", roundTrip(t, conn, "new_msk=1"))
	assert.Equal(t, ":", roundTrip(t, conn, "new_rot=30"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msk := roundTrip(t, conn, "msk=?")
		rot := roundTrip(t, conn, "rot=?")
		m, _ := strconv.ParseFloat(msk, 64)
		r, _ := strconv.ParseFloat(rot, 64)
		if m == 1 && r == 30 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("mask/rotation never settled")
}

func TestServerPark(t *testing.T) {
	_, conn := newTestServer(t)

	assert.Equal(t, ":", roundTrip(t, conn, "park=1"))
	assert.Equal(t, "1.0", roundTrip(t, conn, "park=?"))
	assert.Equal(t, ":", roundTrip(t, conn, "park=0"))
	assert.Equal(t, "0.0", roundTrip(t, conn, "park=?"))
}

func TestServerPanicBit(t *testing.T) {
	s, conn := newTestServer(t)

	assert.Equal(t, "0.0", roundTrip(t, conn, "wdpanic=?"))
	s.SetPanic(true)
	assert.Equal(t, "1.0", roundTrip(t, conn, "wdpanic=?"))
}

func TestServerIgnoresMalformed(t *testing.T) {
	_, conn := newTestServer(t)

	// garbage produces no reply and does not kill the connection
	_, err := conn.Write([]byte("bogus=1\r\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("new_msk=7\r\n")) // out of pattern range
	require.NoError(t, err)

	assert.Equal(t, "0.0", roundTrip(t, conn, "wdpanic=?"))
}

func TestServerSupersedesConnection(t *testing.T) {
	s, conn := newTestServer(t)
	assert.Equal(t, "0.0", roundTrip(t, conn, "park=?"))

	conn2, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn2.Close()
	assert.Equal(t, "0.0", roundTrip(t, conn2, "park=?"))

	// the first connection was dropped when the second arrived
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
