package walletcore

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/onegate/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired   = errors.New("walletcore: address required")
	ErrProjectIDRequired = errors.New("walletcore: project_id required")
	ErrHelloRejected     = errors.New("walletcore: hello rejected")
	ErrPairRejected      = errors.New("walletcore: pair rejected")
	ErrResultMismatch    = errors.New("walletcore: pair result request_id mismatch")
	ErrClientClosed      = errors.New("walletcore: client closed")
)

type Config struct {
	Address            string
	ProjectID          string
	Metadata           session.Metadata
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
	}
}

// Client talks to one wallet core over a single connection. Pair calls are
// serialized; a broken connection is redialed on the next call.
type Client struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, ErrProjectIDRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connect dials the wallet core and completes the hello handshake, retrying
// with backoff until MaxConnectAttempts (0 means unbounded) or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.conn != nil {
		return nil
	}

	var attempt int
	for {
		attempt++
		err := c.connectOnce(ctx)
		if err == nil {
			log.Info().
				Str("addr", c.cfg.Address).
				Int("attempt", attempt).
				Msg("walletcore.Client.Connect ready")
			return nil
		}
		log.Warn().
			Str("addr", c.cfg.Address).
			Int("attempt", attempt).
			Err(err).
			Msg("walletcore.Client.Connect failed")
		if errors.Is(err, ErrHelloRejected) || !c.shouldRetry(attempt) {
			return err
		}
		if err := session.WaitBackoff(ctx, c.cfg.Session.Backoff, attempt, c.rng); err != nil {
			return err
		}
	}
}

// Pair hands one normalized pairing URI to the wallet core and waits for
// its verdict.
func (c *Client) Pair(ctx context.Context, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.conn == nil {
		if err := c.connectOnce(ctx); err != nil {
			return err
		}
	}

	req := session.PairRequest{RequestID: uuid.NewString(), URI: uri}
	res, err := c.roundTrip(ctx, req)
	if err != nil {
		c.dropConn()
		return err
	}
	if res.RequestID != req.RequestID {
		c.dropConn()
		return fmt.Errorf("%w: sent=%s got=%s", ErrResultMismatch, req.RequestID, res.RequestID)
	}
	if res.Status != session.PairStatusOK {
		return fmt.Errorf("%w: %s", ErrPairRejected, res.Message)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *Client) roundTrip(ctx context.Context, req session.PairRequest) (session.PairResult, error) {
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
	if err := session.WritePairRequest(conn, req); err != nil {
		return session.PairResult{}, ctxErr(ctx, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout))
	res, err := session.ReadPairResult(c.reader)
	if err != nil {
		return session.PairResult{}, ctxErr(ctx, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return res, nil
}

func (c *Client) connectOnce(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	reader, err := c.hello(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.conn = conn
	c.reader = reader
	return nil
}

func (c *Client) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if err := c.cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Session.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := c.clientTLSConfig()
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) clientTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.cfg.Session.TLS.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(c.cfg.Session.TLS.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(c.cfg.Address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(c.cfg.Session.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("walletcore: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if c.cfg.Session.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(c.cfg.Session.TLS.CertFile, c.cfg.Session.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (c *Client) hello(conn net.Conn) (*bufio.Reader, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	hello := session.Hello{
		ProjectID: c.cfg.ProjectID,
		Metadata:  c.cfg.Metadata,
	}
	if err := session.WriteHello(conn, hello); err != nil {
		return nil, err
	}
	ack, err := session.ReadHelloAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != session.AckStatusAccepted {
		return nil, fmt.Errorf("%w: code=%d message=%q", ErrHelloRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	return reader, nil
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
