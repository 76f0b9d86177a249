package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/onegate/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().Backoff
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt < 8; attempt++ {
		got := NextBackoffDelay(cfg, attempt, rng)
		if got <= 0 || got > time.Duration(1.5*float64(cfg.MaxDelay)) {
			t.Fatalf("attempt%d out of range: %v", attempt, got)
		}
	}
}

func TestWaitBackoffHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := BackoffConfig{InitialDelay: time.Hour}
	if err := WaitBackoff(ctx, cfg, 1, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	testlog.Start(t)
	hello := Hello{
		ProjectID: "project.alpha",
		Metadata: Metadata{
			Name:        "Onegate",
			Description: "dApp store wallet",
			URL:         "https://example.com",
			Icons:       []string{"https://example.com/icon.svg"},
			Redirect:    Redirect{Native: "onegate://", Universal: "https://example.com"},
		},
	}
	var buf bytes.Buffer
	if err := WriteHello(&buf, hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	got, err := ReadHello(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if got.ProjectID != hello.ProjectID || got.Metadata.Redirect.Native != "onegate://" {
		t.Fatalf("unexpected hello: %+v", got)
	}
	if len(got.Metadata.Icons) != 1 {
		t.Fatalf("unexpected icons: %+v", got.Metadata.Icons)
	}
}

func TestHelloValidate(t *testing.T) {
	testlog.Start(t)
	if err := (Hello{Metadata: Metadata{Name: "x"}}).Validate(); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
	if err := (Hello{ProjectID: "p"}).Validate(); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
}

func TestHelloAckRoundTrip(t *testing.T) {
	testlog.Start(t)
	ack := HelloAck{Status: AckStatusAccepted, TimestampMS: 1700000000000}
	var buf bytes.Buffer
	if err := WriteHelloAck(&buf, ack); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	got, err := ReadHelloAck(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if got != ack {
		t.Fatalf("unexpected ack: %+v", got)
	}
}

func TestPairRoundTrip(t *testing.T) {
	testlog.Start(t)
	req := PairRequest{RequestID: "req.1", URI: "wc:abc@2?relay-protocol=irn&expiry=1"}
	res := PairResult{RequestID: "req.1", Status: PairStatusError, Message: "expired"}

	var buf bytes.Buffer
	if err := WritePairRequest(&buf, req); err != nil {
		t.Fatalf("write pair: %v", err)
	}
	if err := WritePairResult(&buf, res); err != nil {
		t.Fatalf("write result: %v", err)
	}
	r := bufio.NewReader(&buf)
	gotReq, err := ReadPairRequest(r)
	if err != nil {
		t.Fatalf("read pair: %v", err)
	}
	if gotReq != req {
		t.Fatalf("unexpected pair request: %+v", gotReq)
	}
	gotRes, err := ReadPairResult(r)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if gotRes != res {
		t.Fatalf("unexpected pair result: %+v", gotRes)
	}
}

func TestPairRequestRejectsForeignURI(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	err := WritePairRequest(&buf, PairRequest{RequestID: "req.1", URI: "https://example.com"})
	if !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("expected ErrInvalidPair, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("invalid request must not be written")
	}
}

func TestReadUnexpectedControlType(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteHelloAck(&buf, HelloAck{Status: AckStatusRejected, TimestampMS: 1}); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	_, err := ReadPairResult(bufio.NewReader(&buf))
	if !errors.Is(err, ErrUnexpectedControlType) || !errors.Is(err, ErrInvalidPairResult) {
		t.Fatalf("expected unexpected control type, got %v", err)
	}
}

func TestReadControlMessageTooLarge(t *testing.T) {
	testlog.Start(t)
	line := `{"type":"wallet.pair","pair":{"request_id":"` + strings.Repeat("x", maxControlMessageBytes) + `"}}` + "\n"
	_, err := ReadPairRequest(bufio.NewReader(strings.NewReader(line)))
	if !errors.Is(err, ErrControlMessageTooLarge) {
		t.Fatalf("expected ErrControlMessageTooLarge, got %v", err)
	}
}

func TestValidateClientTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	cfg.TLS.Enabled = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
	cfg.TLS.Mutual = true
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKeyCA(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
	cfg.TLS.CAFile = "/tmp/ca.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}
	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}
	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid transport, got %v", err)
	}
}

func TestValidateClientTransportUnknownMode(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = "staging"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: time.Second, SecurityMode: " PRODUCTION "}.WithDefaults()
	if cfg.ReadTimeout != time.Second {
		t.Fatalf("explicit read timeout overwritten: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected connect timeout: %v", cfg.ConnectTimeout)
	}
	if cfg.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("unexpected backoff: %+v", cfg.Backoff)
	}
	if cfg.SecurityMode != SecurityModeProduction {
		t.Fatalf("unexpected security mode: %q", cfg.SecurityMode)
	}
}
