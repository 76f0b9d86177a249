package deeplink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultSchemeRoot    = "onegate://"
	DefaultPairingPrefix = "onegate://wc?uri="

	DefaultRelayProtocol = "irn"
	DefaultExpiryOffset  = time.Hour
)

// Scheme is the application's registered link scheme.
type Scheme struct {
	Root          string
	PairingPrefix string
}

func DefaultScheme() Scheme {
	return Scheme{
		Root:          DefaultSchemeRoot,
		PairingPrefix: DefaultPairingPrefix,
	}
}

// Kind tags the outcome of one normalization.
type Kind int

const (
	KindNotActionable Kind = iota
	KindMalformed
	KindReady
)

func (k Kind) String() string {
	switch k {
	case KindNotActionable:
		return "not_actionable"
	case KindMalformed:
		return "malformed"
	case KindReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Reason explains a not-actionable result.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonLivenessProbe    Reason = "liveness_probe"
	ReasonForeignScheme    Reason = "foreign_scheme"
	ReasonEmptyPayload     Reason = "empty_payload"
	ReasonNoPairingURI     Reason = "no_pairing_uri"
	ReasonNotPairingScheme Reason = "not_pairing_scheme"
)

// Result carries the tagged outcome plus the intermediate forms seen on the
// way, so callers can log each decision point.
type Result struct {
	Kind   Kind
	Reason Reason

	// Extracted is the payload after the pairing prefix was stripped.
	Extracted string
	// Candidate is the string handed to structural decomposition.
	Candidate string
	Decoded   bool
	DecodeErr error
	// Recovered is set when the pairing URI came from a "uri" query parameter.
	Recovered bool

	URI PairingURI
}

func (r Result) Ready() bool {
	return r.Kind == KindReady
}

func notActionable(reason Reason, res Result) Result {
	res.Kind = KindNotActionable
	res.Reason = reason
	return res
}

// Normalizer turns raw deep links into canonical pairing URIs.
type Normalizer struct {
	Scheme        Scheme
	RelayProtocol string
	ExpiryOffset  time.Duration
	Now           func() time.Time
}

func NewNormalizer(scheme Scheme) *Normalizer {
	return &Normalizer{
		Scheme:        scheme,
		RelayProtocol: DefaultRelayProtocol,
		ExpiryOffset:  DefaultExpiryOffset,
		Now:           time.Now,
	}
}

// Normalize runs the full pipeline over raw. The returned error is non-nil
// only for KindMalformed and wraps ErrMalformedPairingURI.
func (n *Normalizer) Normalize(raw string) (Result, error) {
	var res Result

	if raw == n.Scheme.Root {
		return notActionable(ReasonLivenessProbe, res), nil
	}
	if n.Scheme.Root == "" || !strings.HasPrefix(raw, n.Scheme.Root) {
		return notActionable(ReasonForeignScheme, res), nil
	}

	candidate := raw
	if n.Scheme.PairingPrefix != "" {
		candidate = strings.TrimPrefix(raw, n.Scheme.PairingPrefix)
	}
	res.Extracted = candidate
	if candidate == "" {
		return notActionable(ReasonEmptyPayload, res), nil
	}

	if decoded, err := decodeComponent(candidate); err != nil {
		res.DecodeErr = err
	} else {
		candidate = decoded
		res.Decoded = true
	}

	if !HasPairingScheme(candidate) {
		inner, ok := ParseParams(candidate).Get(ParamURI)
		if !ok || inner == "" {
			res.Candidate = candidate
			return notActionable(ReasonNoPairingURI, res), nil
		}
		candidate = inner
		res.Recovered = true
	}
	res.Candidate = candidate

	if !HasPairingScheme(candidate) {
		return notActionable(ReasonNotPairingScheme, res), nil
	}

	uri, err := ParsePairingURI(candidate)
	if err != nil {
		res.Kind = KindMalformed
		return res, err
	}
	n.applyDefaults(uri.Params)

	res.Kind = KindReady
	res.URI = uri
	return res, nil
}

// NormalizeString is Normalize reduced to the final URI string. ok is false
// for not-actionable input.
func (n *Normalizer) NormalizeString(raw string) (string, bool, error) {
	res, err := n.Normalize(raw)
	if err != nil {
		return "", false, err
	}
	if !res.Ready() {
		return "", false, nil
	}
	return res.URI.String(), true, nil
}

func (n *Normalizer) applyDefaults(params *Params) {
	if !params.Has(ParamRelayProtocol) {
		relay := n.RelayProtocol
		if relay == "" {
			relay = DefaultRelayProtocol
		}
		params.Set(ParamRelayProtocol, relay)
	}
	if !params.Has(ParamExpiry) {
		params.Set(ParamExpiry, n.expiryDefault())
	}
}

func (n *Normalizer) expiryDefault() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	offset := n.ExpiryOffset
	if offset <= 0 {
		offset = DefaultExpiryOffset
	}
	return strconv.FormatInt(now().Add(offset).Unix(), 10)
}

func (r Result) String() string {
	switch r.Kind {
	case KindReady:
		return fmt.Sprintf("ready uri=%s", r.URI.String())
	case KindNotActionable:
		return fmt.Sprintf("not_actionable reason=%s", r.Reason)
	default:
		return r.Kind.String()
	}
}

// decodeComponent mirrors decodeURIComponent: one unescape pass that fails
// when the escapes do not spell valid UTF-8.
func decodeComponent(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(decoded) {
		return "", ErrInvalidEncoding
	}
	return decoded, nil
}
