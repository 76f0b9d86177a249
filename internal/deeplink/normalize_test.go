package deeplink

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/onegate/internal/testutil/testlog"
)

func fixedNormalizer(now time.Time) *Normalizer {
	n := NewNormalizer(DefaultScheme())
	n.Now = func() time.Time { return now }
	return n
}

func mustReady(t *testing.T, n *Normalizer, raw string) Result {
	t.Helper()
	res, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize %q: %v", raw, err)
	}
	if res.Kind != KindReady {
		t.Fatalf("normalize %q: expected ready, got %s", raw, res)
	}
	return res
}

func TestNormalizeForeignSchemeNotActionable(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(DefaultScheme())
	for _, raw := range []string{
		"",
		"https://example.com/wc?uri=wc:abc@2?relay-protocol=irn",
		"wc:abc@2?relay-protocol=irn",
		"onegate:/wc?uri=wc:abc@2",
		"ONEGATE://wc?uri=wc:abc@2",
	} {
		res, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("normalize %q: %v", raw, err)
		}
		if res.Kind != KindNotActionable || res.Reason != ReasonForeignScheme {
			t.Fatalf("normalize %q: expected foreign scheme, got %s", raw, res)
		}
	}
}

func TestNormalizeBareSchemeIsLivenessProbe(t *testing.T) {
	testlog.Start(t)
	res, err := NewNormalizer(DefaultScheme()).Normalize("onegate://")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Kind != KindNotActionable || res.Reason != ReasonLivenessProbe {
		t.Fatalf("expected liveness probe, got %s", res)
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	testlog.Start(t)
	res, err := NewNormalizer(DefaultScheme()).Normalize("onegate://wc?uri=")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Kind != KindNotActionable || res.Reason != ReasonEmptyPayload {
		t.Fatalf("expected empty payload, got %s", res)
	}
}

func TestNormalizeEncodedPayload(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	res := mustReady(t, fixedNormalizer(now), "onegate://wc?uri=wc%3A1234%40 2%3Frelay-protocol%3Dirn")

	if !res.Decoded {
		t.Fatalf("expected decode pass to succeed")
	}
	if res.URI.Identifier != "1234" {
		t.Fatalf("unexpected identifier: %q", res.URI.Identifier)
	}
	if res.URI.Version != "2" {
		t.Fatalf("unexpected version: %q", res.URI.Version)
	}
	if v, _ := res.URI.Params.Get(ParamRelayProtocol); v != "irn" {
		t.Fatalf("unexpected relay-protocol: %q", v)
	}
	expiry, ok := res.URI.Params.Get(ParamExpiry)
	if !ok {
		t.Fatalf("expected injected expiry")
	}
	secs, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		t.Fatalf("expiry not decimal: %q", expiry)
	}
	if secs < now.Unix() || secs > now.Unix()+3600 {
		t.Fatalf("expiry %d outside [now, now+3600]", secs)
	}

	want := "wc:1234@2?relay-protocol=irn&expiry=1700003600"
	if got := res.URI.String(); got != want {
		t.Fatalf("unexpected uri:\n got=%s\nwant=%s", got, want)
	}
}

func TestNormalizeExpiryWithinWindowWithRealClock(t *testing.T) {
	testlog.Start(t)
	before := time.Now().Unix()
	res := mustReady(t, NewNormalizer(DefaultScheme()), "onegate://wc?uri=wc:abc@2?relay-protocol=irn")
	after := time.Now().Unix()

	expiry, _ := res.URI.Params.Get(ParamExpiry)
	secs, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		t.Fatalf("expiry not decimal: %q", expiry)
	}
	if secs < before || secs > after+3600 {
		t.Fatalf("expiry %d outside [%d, %d]", secs, before, after+3600)
	}
}

func TestNormalizeInjectsDefaultsAndPreservesParams(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	res := mustReady(t, fixedNormalizer(now), "onegate://wc?uri=wc:abc@2?foo=bar")

	if v, _ := res.URI.Params.Get("foo"); v != "bar" {
		t.Fatalf("foo not preserved: %q", v)
	}
	if v, _ := res.URI.Params.Get(ParamRelayProtocol); v != "irn" {
		t.Fatalf("unexpected relay-protocol: %q", v)
	}
	if v, _ := res.URI.Params.Get(ParamExpiry); v != "1700003600" {
		t.Fatalf("unexpected expiry: %q", v)
	}
	if got := res.URI.String(); got != "wc:abc@2?foo=bar&relay-protocol=irn&expiry=1700003600" {
		t.Fatalf("unexpected uri: %s", got)
	}
}

func TestNormalizeKeepsExplicitRelayAndExpiry(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(1700000000, 0))
	res := mustReady(t, n, "onegate://wc?uri=wc:abc@2?expiry=42&relay-protocol=waku&symKey=deadbeef")
	if got := res.URI.String(); got != "wc:abc@2?expiry=42&relay-protocol=waku&symKey=deadbeef" {
		t.Fatalf("unexpected uri: %s", got)
	}
}

func TestNormalizeOutputFedBackIsStable(t *testing.T) {
	testlog.Start(t)
	first := mustReady(t, fixedNormalizer(time.Unix(1700000000, 0)), "onegate://wc?uri=wc:abc@2?foo=bar&symKey=k1")
	firstExpiry, _ := first.URI.Params.Get(ParamExpiry)

	second := mustReady(t, fixedNormalizer(time.Unix(1700000500, 0)), DefaultPairingPrefix+first.URI.String())
	if second.URI.Identifier != first.URI.Identifier || second.URI.Version != first.URI.Version {
		t.Fatalf("identity changed: %+v -> %+v", first.URI, second.URI)
	}
	secondExpiry, _ := second.URI.Params.Get(ParamExpiry)
	a, _ := strconv.ParseInt(firstExpiry, 10, 64)
	b, _ := strconv.ParseInt(secondExpiry, 10, 64)
	if b < a {
		t.Fatalf("expiry moved backwards: %d -> %d", a, b)
	}
	for _, key := range []string{ParamRelayProtocol, "foo", "symKey"} {
		v1, _ := first.URI.Params.Get(key)
		v2, _ := second.URI.Params.Get(key)
		if v1 != v2 {
			t.Fatalf("param %s changed: %q -> %q", key, v1, v2)
		}
	}
	if second.URI.String() != first.URI.String() {
		t.Fatalf("expected identical output:\n%s\n%s", first.URI.String(), second.URI.String())
	}
}

func TestNormalizeMissingAtIsMalformed(t *testing.T) {
	testlog.Start(t)
	res, err := NewNormalizer(DefaultScheme()).Normalize("onegate://wc?uri=wc:onlyoneparthere")
	if !errors.Is(err, ErrMalformedPairingURI) {
		t.Fatalf("expected ErrMalformedPairingURI, got %v", err)
	}
	if res.Kind != KindMalformed {
		t.Fatalf("expected malformed kind, got %s", res.Kind)
	}
}

func TestNormalizeMalformedVariants(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(DefaultScheme())
	for _, inner := range []string{
		"wc:abc@2",
		"wc:@2?relay-protocol=irn",
		"wc:abc@?relay-protocol=irn",
		"wc:abc@v2?relay-protocol=irn",
	} {
		_, err := n.Normalize(DefaultPairingPrefix + inner)
		if !errors.Is(err, ErrMalformedPairingURI) {
			t.Fatalf("%q: expected ErrMalformedPairingURI, got %v", inner, err)
		}
	}
}

func TestNormalizeRecoversURIParameter(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(1700000000, 0))
	// The whole link is decoded once before the query parse, so the inner
	// URI has to survive one extra layer.
	inner := url.QueryEscape(url.QueryEscape("wc:abc@2?relay-protocol=irn&symKey=s1"))
	res := mustReady(t, n, "onegate://connect?source=qr&uri="+inner)
	if !res.Recovered {
		t.Fatalf("expected uri parameter recovery")
	}
	if res.URI.Identifier != "abc" {
		t.Fatalf("unexpected identifier: %q", res.URI.Identifier)
	}
	if v, _ := res.URI.Params.Get("symKey"); v != "s1" {
		t.Fatalf("unexpected symKey: %q", v)
	}
}

func TestNormalizeNoPairingURI(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(DefaultScheme())
	res, err := n.Normalize("onegate://settings?tab=wallet")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Kind != KindNotActionable || res.Reason != ReasonNoPairingURI {
		t.Fatalf("expected no pairing uri, got %s", res)
	}
}

func TestNormalizeRecoveredValueWithoutPairingScheme(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(DefaultScheme())
	res, err := n.Normalize("onegate://open?from=web&uri=https%3A%2F%2Fexample.com")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Kind != KindNotActionable || res.Reason != ReasonNotPairingScheme {
		t.Fatalf("expected not pairing scheme, got %s", res)
	}
}

func TestNormalizeDecodeFailureFallsBack(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(1700000000, 0))
	res := mustReady(t, n, "onegate://wc?uri=wc:abc@2?note=100%&relay-protocol=irn")
	if res.Decoded || res.DecodeErr == nil {
		t.Fatalf("expected decode failure to be recorded")
	}
	if v, _ := res.URI.Params.Get("note"); v != "100%" {
		t.Fatalf("unexpected note: %q", v)
	}
}

func TestNormalizeSingleDecodePass(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(DefaultScheme())
	// Double-encoded payload only loses one layer, so no pairing scheme is found.
	res, err := n.Normalize("onegate://wc?uri=wc%253Aabc%2540 2%253Frelay-protocol%253Dirn")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Kind != KindNotActionable {
		t.Fatalf("expected not actionable, got %s", res)
	}
}

func TestNormalizeCustomScheme(t *testing.T) {
	testlog.Start(t)
	n := NewNormalizer(Scheme{Root: "wallet://", PairingPrefix: "wallet://pair/"})
	n.Now = func() time.Time { return time.Unix(10, 0) }
	uri, ok, err := n.NormalizeString("wallet://pair/wc:t1@2?relay-protocol=irn")
	if err != nil || !ok {
		t.Fatalf("normalize: ok=%v err=%v", ok, err)
	}
	if uri != "wc:t1@2?relay-protocol=irn&expiry=3610" {
		t.Fatalf("unexpected uri: %s", uri)
	}
	if _, ok, _ := n.NormalizeString("onegate://wc?uri=wc:t1@2?x=1"); ok {
		t.Fatalf("default scheme must not be accepted by custom normalizer")
	}
}

func TestNormalizeCustomDefaults(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(100, 0))
	n.RelayProtocol = "waku"
	n.ExpiryOffset = 5 * time.Minute
	res := mustReady(t, n, "onegate://wc?uri=wc:abc@2?")
	if got := res.URI.String(); got != "wc:abc@2?relay-protocol=waku&expiry=400" {
		t.Fatalf("unexpected uri: %s", got)
	}
}

func TestReassembledParamsRoundTrip(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(1700000000, 0))
	res := mustReady(t, n, "onegate://wc?uri=wc:abc@2?name=a+b&path=%2Fx%2Fy&emoji=%E2%9C%93")

	_, query, ok := cutQuery(res.URI.String())
	if !ok {
		t.Fatalf("missing query in %s", res.URI.String())
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	built := res.URI.Params.All()
	if len(values) != len(built) {
		t.Fatalf("key count mismatch: %v vs %v", values, built)
	}
	for _, p := range built {
		got := values[p.Key]
		if len(got) != 1 || got[0] != p.Value {
			t.Fatalf("key %s: got %v want %q", p.Key, got, p.Value)
		}
	}
}

func cutQuery(uri string) (string, string, bool) {
	for i := 0; i < len(uri); i++ {
		if uri[i] == '?' {
			return uri[:i], uri[i+1:], true
		}
	}
	return uri, "", false
}

func TestNormalizeInvalidUTF8DecodeFallsBack(t *testing.T) {
	testlog.Start(t)
	n := fixedNormalizer(time.Unix(1700000000, 0))
	res := mustReady(t, n, "onegate://wc?uri=wc:abc@2?note=%FF&relay-protocol=irn")
	if res.Decoded || !errors.Is(res.DecodeErr, ErrInvalidEncoding) {
		t.Fatalf("expected invalid encoding fallback, got decoded=%v err=%v", res.Decoded, res.DecodeErr)
	}
	if !strings.HasPrefix(res.URI.String(), "wc:abc@2?note=%EF%BF%BD&relay-protocol=irn&expiry=") {
		t.Fatalf("unexpected uri: %s", res.URI)
	}
}
