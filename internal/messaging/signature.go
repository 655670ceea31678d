package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SignatureFormat selects which header encodings the verifier accepts.
type SignatureFormat string

const (
	// SignatureFormatAny accepts both "sha256=<hex>" and the bare hex digest.
	SignatureFormatAny SignatureFormat = "any"
	// SignatureFormatPrefixed accepts only "sha256=<hex>".
	SignatureFormatPrefixed SignatureFormat = "prefixed"
	// SignatureFormatHex accepts only the bare hex digest.
	SignatureFormatHex SignatureFormat = "hex"

	signaturePrefix = "sha256="

	// DefaultMaxSkew is the replay window for webhook timestamps.
	DefaultMaxSkew = 300 * time.Second
)

// ParseSignatureFormat maps a config value to a SignatureFormat, falling back
// to SignatureFormatAny for anything unrecognised.
func ParseSignatureFormat(value string) SignatureFormat {
	switch SignatureFormat(strings.ToLower(strings.TrimSpace(value))) {
	case SignatureFormatPrefixed:
		return SignatureFormatPrefixed
	case SignatureFormatHex:
		return SignatureFormatHex
	default:
		return SignatureFormatAny
	}
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Secret  string
	Format  SignatureFormat
	MaxSkew time.Duration
	Now     func() time.Time
}

// Verifier checks webhook authenticity: HMAC-SHA256 over the raw body plus a
// timestamp replay window.
type Verifier struct {
	secret  []byte
	format  SignatureFormat
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier builds a Verifier. An empty secret is allowed here so the
// service can boot, but every verification then fails closed.
func NewVerifier(cfg VerifierConfig) *Verifier {
	format := cfg.Format
	if format == "" {
		format = SignatureFormatAny
	}
	maxSkew := cfg.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret:  []byte(cfg.Secret),
		format:  format,
		maxSkew: maxSkew,
		now:     now,
	}
}

// Sign returns the bare hex HMAC-SHA256 digest of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates the X-Webhook-Signature header value against body.
func (v *Verifier) VerifySignature(body []byte, header string) error {
	if len(v.secret) == 0 {
		return ErrSecretMissing
	}
	actual := strings.TrimSpace(header)
	if actual == "" {
		return ErrMissingSignature
	}
	expected := Sign(string(v.secret), body)

	var ok bool
	switch v.format {
	case SignatureFormatPrefixed:
		ok = hmac.Equal([]byte(signaturePrefix+expected), []byte(actual))
	case SignatureFormatHex:
		ok = hmac.Equal([]byte(expected), []byte(actual))
	default:
		// Both comparisons always run.
		prefixed := hmac.Equal([]byte(signaturePrefix+expected), []byte(actual))
		bare := hmac.Equal([]byte(expected), []byte(actual))
		ok = prefixed || bare
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}

// CheckReplay rejects timestamps (unix seconds) further than the max skew
// from now in either direction. A nil timestamp is accepted because the
// payload carried none.
func (v *Verifier) CheckReplay(timestamp *int64) error {
	if timestamp == nil {
		return nil
	}
	sentAt := time.Unix(*timestamp, 0)
	diff := v.now().Sub(sentAt)
	if diff > v.maxSkew || diff < -v.maxSkew {
		return fmt.Errorf("%w: skew %s exceeds %s", ErrReplayWindow, diff, v.maxSkew)
	}
	return nil
}
