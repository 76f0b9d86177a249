package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	controlTypeHello      = "wallet.hello"
	controlTypeHelloAck   = "wallet.hello.ack"
	controlTypePair       = "wallet.pair"
	controlTypePairResult = "wallet.pair.result"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	PairStatusOK    = "ok"
	PairStatusError = "error"

	maxControlMessageBytes = 128 * 1024
)

var (
	ErrInvalidHello           = errors.New("session: invalid hello")
	ErrInvalidHelloAck        = errors.New("session: invalid hello ack")
	ErrInvalidPair            = errors.New("session: invalid pair request")
	ErrInvalidPairResult      = errors.New("session: invalid pair result")
	ErrUnexpectedControlType  = errors.New("session: unexpected control type")
	ErrControlMessageTooLarge = errors.New("session: control message too large")
)

// Redirect tells the dApp how to hand control back to the wallet.
type Redirect struct {
	Native    string `json:"native,omitempty"`
	Universal string `json:"universal,omitempty"`
}

// Metadata describes the wallet to peers during pairing.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Redirect    Redirect `json:"redirect"`
}

// Hello is the client->wallet-core session-start payload.
type Hello struct {
	ProjectID string   `json:"project_id"`
	Metadata  Metadata `json:"metadata"`
}

func (h Hello) Validate() error {
	if strings.TrimSpace(h.ProjectID) == "" {
		return fmt.Errorf("%w: missing project_id", ErrInvalidHello)
	}
	if strings.TrimSpace(h.Metadata.Name) == "" {
		return fmt.Errorf("%w: missing metadata.name", ErrInvalidHello)
	}
	return nil
}

// HelloAck is the wallet-core->client handshake response.
type HelloAck struct {
	Status      string `json:"status"`
	Code        uint32 `json:"code"`
	Message     string `json:"message"`
	TimestampMS uint64 `json:"timestamp_ms"`
}

func (a HelloAck) Validate() error {
	status := strings.TrimSpace(a.Status)
	if status != AckStatusAccepted && status != AckStatusRejected {
		return fmt.Errorf("%w: invalid status", ErrInvalidHelloAck)
	}
	if a.TimestampMS == 0 {
		return fmt.Errorf("%w: missing timestamp_ms", ErrInvalidHelloAck)
	}
	return nil
}

// PairRequest asks the wallet core to pair using a normalized URI.
type PairRequest struct {
	RequestID string `json:"request_id"`
	URI       string `json:"uri"`
}

func (p PairRequest) Validate() error {
	if strings.TrimSpace(p.RequestID) == "" {
		return fmt.Errorf("%w: missing request_id", ErrInvalidPair)
	}
	if !strings.HasPrefix(p.URI, "wc:") {
		return fmt.Errorf("%w: uri must use the wc scheme", ErrInvalidPair)
	}
	return nil
}

// PairResult reports the outcome of one PairRequest.
type PairResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

func (r PairResult) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("%w: missing request_id", ErrInvalidPairResult)
	}
	status := strings.TrimSpace(r.Status)
	if status != PairStatusOK && status != PairStatusError {
		return fmt.Errorf("%w: invalid status", ErrInvalidPairResult)
	}
	return nil
}

type controlEnvelope struct {
	Type       string       `json:"type"`
	Hello      *Hello       `json:"hello,omitempty"`
	HelloAck   *HelloAck    `json:"hello_ack,omitempty"`
	Pair       *PairRequest `json:"pair,omitempty"`
	PairResult *PairResult  `json:"pair_result,omitempty"`
}

func WriteHello(w io.Writer, hello Hello) error {
	if err := hello.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeHello, Hello: &hello})
}

func ReadHello(r *bufio.Reader) (Hello, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return Hello{}, err
	}
	if env.Type != controlTypeHello || env.Hello == nil {
		return Hello{}, fmt.Errorf("%w: %w", ErrInvalidHello, ErrUnexpectedControlType)
	}
	if err := env.Hello.Validate(); err != nil {
		return Hello{}, err
	}
	return *env.Hello, nil
}

func WriteHelloAck(w io.Writer, ack HelloAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeHelloAck, HelloAck: &ack})
}

func ReadHelloAck(r *bufio.Reader) (HelloAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return HelloAck{}, err
	}
	if env.Type != controlTypeHelloAck || env.HelloAck == nil {
		return HelloAck{}, fmt.Errorf("%w: %w", ErrInvalidHelloAck, ErrUnexpectedControlType)
	}
	if err := env.HelloAck.Validate(); err != nil {
		return HelloAck{}, err
	}
	return *env.HelloAck, nil
}

func WritePairRequest(w io.Writer, req PairRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypePair, Pair: &req})
}

func ReadPairRequest(r *bufio.Reader) (PairRequest, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return PairRequest{}, err
	}
	if env.Type != controlTypePair || env.Pair == nil {
		return PairRequest{}, fmt.Errorf("%w: %w", ErrInvalidPair, ErrUnexpectedControlType)
	}
	if err := env.Pair.Validate(); err != nil {
		return PairRequest{}, err
	}
	return *env.Pair, nil
}

func WritePairResult(w io.Writer, res PairResult) error {
	if err := res.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypePairResult, PairResult: &res})
}

func ReadPairResult(r *bufio.Reader) (PairResult, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return PairResult{}, err
	}
	if env.Type != controlTypePairResult || env.PairResult == nil {
		return PairResult{}, fmt.Errorf("%w: %w", ErrInvalidPairResult, ErrUnexpectedControlType)
	}
	if err := env.PairResult.Validate(); err != nil {
		return PairResult{}, err
	}
	return *env.PairResult, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return controlEnvelope{}, err
	}
	if len(line) > maxControlMessageBytes {
		return controlEnvelope{}, ErrControlMessageTooLarge
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, err
	}
	return env, nil
}
