package walletcoretest

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/onegate/internal/session"
)

// PairFunc decides the verdict for one pair request. A non-nil error is
// reported back as a pair.result with status "error".
type PairFunc func(uri string) error

// Server is an in-process wallet core speaking the session wire contract.
type Server struct {
	ln       net.Listener
	pair     PairFunc
	rejectHi bool

	mu     sync.Mutex
	hellos []session.Hello
	uris   []string
	conns  []net.Conn
	wg     sync.WaitGroup
}

type Option func(*Server)

func WithPairFunc(fn PairFunc) Option {
	return func(s *Server) { s.pair = fn }
}

// WithRejectHello makes every handshake answer "rejected".
func WithRejectHello() Option {
	return func(s *Server) { s.rejectHi = true }
}

// WithTLS wraps the listener with the given server TLS config.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.ln = tls.NewListener(s.ln, cfg) }
}

func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{ln: ln, pair: func(string) error { return nil }}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Hellos() []session.Hello {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Hello, len(s.hellos))
	copy(out, s.hellos)
	return out
}

func (s *Server) URIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.uris))
	copy(out, s.uris)
	return out
}

// DropConnections closes every accepted connection without stopping the
// listener.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	reader := bufio.NewReader(conn)

	hello, err := session.ReadHello(reader)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.hellos = append(s.hellos, hello)
	s.mu.Unlock()

	ack := session.HelloAck{Status: session.AckStatusAccepted, TimestampMS: uint64(time.Now().UnixMilli())}
	if s.rejectHi {
		ack.Status = session.AckStatusRejected
		ack.Code = 403
		ack.Message = "unknown project"
	}
	if err := session.WriteHelloAck(conn, ack); err != nil || s.rejectHi {
		return
	}

	for {
		req, err := session.ReadPairRequest(reader)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.uris = append(s.uris, req.URI)
		s.mu.Unlock()

		res := session.PairResult{RequestID: req.RequestID, Status: session.PairStatusOK}
		if perr := s.pair(req.URI); perr != nil {
			res.Status = session.PairStatusError
			res.Message = perr.Error()
		}
		if err := session.WritePairResult(conn, res); err != nil {
			return
		}
	}
}
