package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"
	"strings"
)

// Provider identifies the verification scheme for an inbound webhook. The set
// is closed: Verify fails for any value outside it.
type Provider int

const (
	// ProviderGenericHMAC is a plain HMAC over the payload with a
	// configurable digest and output encoding.
	ProviderGenericHMAC Provider = iota

	// ProviderTimestampHMAC signs "<timestamp>.<payload>" and enforces the
	// replay window. This is also the scheme hookrelay uses for its own
	// outgoing webhooks.
	ProviderTimestampHMAC

	// ProviderStructuredHeader parses a "t=...,v1=..." signature header.
	ProviderStructuredHeader

	// ProviderSortedParams concatenates the target URL with form parameters
	// sorted by key, then HMAC-SHA1 base64 (Twilio style).
	ProviderSortedParams

	// ProviderPrefixedHex strips a "sha256=" prefix from the signature, then
	// compares an HMAC-SHA256 hex digest.
	ProviderPrefixedHex
)

type Digest int

const (
	DigestSHA256 Digest = iota
	DigestSHA1
)

type Encoding int

const (
	EncodingHex Encoding = iota
	EncodingBase64
)

// Input carries everything a verifier variant may need. Fields irrelevant to
// the selected provider are ignored.
type Input struct {
	Payload   []byte
	Secret    string
	Signature string

	// ProviderTimestampHMAC
	Timestamp int64

	// ProviderStructuredHeader: the raw signature header, e.g. "t=...,v1=...".
	Header string

	// ProviderSortedParams
	URL    string
	Params map[string]string

	// ProviderGenericHMAC
	Digest   Digest
	Encoding Encoding
}

// Verify dispatches to the verifier for p. Unknown providers fail closed.
// Every comparison is constant-time.
func Verify(p Provider, in Input) bool {
	switch p {
	case ProviderGenericHMAC:
		return verifyGeneric(in)
	case ProviderTimestampHMAC:
		return VerifyTimestamped(in.Secret, in.Payload, in.Timestamp, in.Signature)
	case ProviderStructuredHeader:
		return verifyStructuredHeader(in)
	case ProviderSortedParams:
		return verifySortedParams(in)
	case ProviderPrefixedHex:
		return verifyPrefixedHex(in)
	default:
		return false
	}
}

func verifyGeneric(in Input) bool {
	var newHash func() hash.Hash
	switch in.Digest {
	case DigestSHA1:
		newHash = sha1.New
	default:
		newHash = sha256.New
	}

	mac := hmac.New(newHash, []byte(in.Secret))
	mac.Write(in.Payload)
	sum := mac.Sum(nil)

	var expected string
	switch in.Encoding {
	case EncodingBase64:
		expected = base64.StdEncoding.EncodeToString(sum)
	default:
		expected = hex.EncodeToString(sum)
	}

	return hmac.Equal([]byte(expected), []byte(in.Signature))
}

// verifyStructuredHeader handles "t=<unix>,v1=<hex>" headers. Both fields
// must be present; the timestamp is subject to the replay window.
func verifyStructuredHeader(in Input) bool {
	fields := map[string]string{}
	for _, part := range strings.Split(in.Header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		fields[k] = v
	}

	ts, hasTS := fields["t"]
	sig, hasSig := fields["v1"]
	if !hasTS || !hasSig {
		return false
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	return VerifyTimestamped(in.Secret, in.Payload, timestamp, sig)
}

func verifySortedParams(in Input) bool {
	keys := make([]string, 0, len(in.Params))
	for k := range in.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(in.URL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(in.Params[k])
	}

	mac := hmac.New(sha1.New, []byte(in.Secret))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(in.Signature))
}

func verifyPrefixedHex(in Input) bool {
	sig, ok := strings.CutPrefix(in.Signature, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(in.Secret))
	mac.Write(in.Payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}
