package sim

import (
	"bufio"
	"io"
	"log"
	"net"
	"regexp"
	"strconv"
	"sync"

	"github.com/opencalib/cbpctl/wire"
)

// Encoders holds the simulated axes with the travel limits and speeds of
// the real mount.
type Encoders struct {
	Azimuth    *Actuator
	Elevation  *Actuator
	Focus      *Actuator
	MaskSelect *Actuator
	MaskRotate *CircularActuator
}

// NewEncoders returns encoders at their power-on positions.
func NewEncoders() Encoders {
	return Encoders{
		Azimuth:    NewActuator(-45, 45, 10, 0),
		Elevation:  NewActuator(-69, 45, 10, 0),
		Focus:      NewActuator(0, 13000, 1000, 0),
		MaskSelect: NewActuator(1, 5, 1, 1),
		MaskRotate: NewCircularActuator(10, 0),
	}
}

type command struct {
	re     *regexp.Regexp
	handle func(arg string) string
}

// Server terminates the projector protocol in place of real hardware. It
// accepts one client at a time; a new connection supersedes the previous
// one. Command dispatch walks an ordered pattern table and the first match
// wins; the patterns are mutually exclusive by construction, but the
// ordering is still part of the contract and must not be rearranged.
type Server struct {
	Encoders Encoders

	log   *log.Logger
	codec wire.Codec

	mu       sync.Mutex
	park     bool
	autoPark bool
	panic    bool

	commands []command

	ln      net.Listener
	closed  chan struct{}
	closeMu sync.Mutex

	connMu sync.Mutex
	conn   net.Conn
}

// New returns an unstarted simulator speaking the given terminator mode.
// A nil logger falls back to the process default.
func New(logger *log.Logger, term wire.Terminator) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		Encoders: NewEncoders(),
		log:      logger,
		codec:    wire.NewCodec(term),
		closed:   make(chan struct{}),
	}
	s.commands = []command{
		{regexp.MustCompile(`^az=\?$`), s.doAzimuth},
		{regexp.MustCompile(`^alt=\?$`), s.doElevation},
		{regexp.MustCompile(`^new_alt=(-?\d+(?:\.\d+)?)$`), s.doNewElevation},
		{regexp.MustCompile(`^foc=\?$`), s.doFocus},
		{regexp.MustCompile(`^new_foc=(\d+)$`), s.doNewFocus},
		{regexp.MustCompile(`^msk=\?$`), s.doMask},
		{regexp.MustCompile(`^new_msk=([1-5])$`), s.doNewMask},
		{regexp.MustCompile(`^rot=\?$`), s.doRotation},
		{regexp.MustCompile(`^new_rot=(-?\d+(?:\.\d+)?)$`), s.doNewRotation},
		{regexp.MustCompile(`^new_az=(-?\d+(?:\.\d+)?)$`), s.doNewAzimuth},
		{regexp.MustCompile(`^wdpanic=\?$`), s.doPanic},
		{regexp.MustCompile(`^autopark=\?$`), s.doAutoPark},
		{regexp.MustCompile(`^park=(\?|0|1)$`), s.doPark},
		{regexp.MustCompile(`^AAstat=\?$`), s.doStat},
		{regexp.MustCompile(`^ABstat=\?$`), s.doStat},
		{regexp.MustCompile(`^ACstat=\?$`), s.doStat},
		{regexp.MustCompile(`^ADstat=\?$`), s.doStat},
		{regexp.MustCompile(`^AEstat=\?$`), s.doStat},
	}
	return s
}

// Listen binds the server and starts accepting clients. Use addr
// "127.0.0.1:0" in tests and read the bound address back with Addr.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting and drops the current client.
func (s *Server) Close() error {
	s.closeMu.Lock()
	select {
	case <-s.closed:
		s.closeMu.Unlock()
		return nil
	default:
		close(s.closed)
	}
	s.closeMu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
	return err
}

// SetPanic latches the simulated watchdog panic bit. All other status
// bits always report healthy; this is the single supported fault.
func (s *Server) SetPanic(v bool) {
	s.mu.Lock()
	s.panic = v
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.log.Println("ERROR: accept:", err)
			continue
		}

		// one client at a time: a new connection supersedes a stale one
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.connMu.Unlock()

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := s.readLine(r)
		if err != nil {
			if err != io.EOF {
				s.log.Println("ERROR: read:", err)
			}
			return
		}
		if line == "" {
			continue
		}
		reply, matched := s.dispatch(line)
		if !matched {
			s.log.Printf("unmatched command %q", line)
			continue
		}
		if _, err := conn.Write(s.codec.Encode(reply)); err != nil {
			s.log.Println("ERROR: write:", err)
			return
		}
	}
}

func (s *Server) readLine(r *bufio.Reader) (string, error) {
	delim := byte('\r')
	if s.codec.Term == wire.CRLF {
		delim = '\n'
	}
	line, err := r.ReadString(delim)
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\r' || line[len(line)-1] == '\n') {
		line = line[:len(line)-1]
	}
	return line, nil
}

func (s *Server) dispatch(line string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		m := c.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var arg string
		if len(m) > 1 {
			arg = m[1]
		}
		return c.handle(arg), true
	}
	return "", false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolFloat(v bool) string {
	if v {
		return "1.0"
	}
	return "0.0"
}

func (s *Server) doAzimuth(string) string {
	return formatFloat(s.Encoders.Azimuth.Position())
}

func (s *Server) doNewAzimuth(arg string) string {
	v, _ := strconv.ParseFloat(arg, 64)
	s.Encoders.Azimuth.SetTarget(v)
	return wire.Ack
}

func (s *Server) doElevation(string) string {
	return formatFloat(s.Encoders.Elevation.Position())
}

func (s *Server) doNewElevation(arg string) string {
	v, _ := strconv.ParseFloat(arg, 64)
	s.Encoders.Elevation.SetTarget(v)
	return wire.Ack
}

func (s *Server) doFocus(string) string {
	return strconv.Itoa(int(s.Encoders.Focus.Position()))
}

func (s *Server) doNewFocus(arg string) string {
	v, _ := strconv.ParseFloat(arg, 64)
	s.Encoders.Focus.SetTarget(v)
	return wire.Ack
}

func (s *Server) doMask(string) string {
	return formatFloat(s.Encoders.MaskSelect.Position())
}

func (s *Server) doNewMask(arg string) string {
	v, _ := strconv.ParseFloat(arg, 64)
	s.Encoders.MaskSelect.SetTarget(v)
	return wire.Ack
}

func (s *Server) doRotation(string) string {
	return formatFloat(s.Encoders.MaskRotate.Position())
}

func (s *Server) doNewRotation(arg string) string {
	v, _ := strconv.ParseFloat(arg, 64)
	s.Encoders.MaskRotate.SetTarget(v)
	return wire.Ack
}

func (s *Server) doPark(arg string) string {
	if arg == "?" {
		return boolFloat(s.park)
	}
	s.park = arg == "1"
	return wire.Ack
}

func (s *Server) doPanic(string) string {
	return boolFloat(s.panic)
}

func (s *Server) doAutoPark(string) string {
	return boolFloat(s.autoPark)
}

// doStat reports one encoder status bit. The simulated encoders are
// always healthy.
func (s *Server) doStat(string) string {
	return "0.0"
}
