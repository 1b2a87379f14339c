package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned by verifySignature when the header fails
// to parse or none of its v1 signatures match the computed HMAC.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// maxSignatureAge bounds how stale a webhook's timestamp may be before it's
// rejected as a replay, matching the tolerance Stripe's own SDKs default to.
const maxSignatureAge = 5 * time.Minute

// verifySignature checks a Stripe-style "Stripe-Signature" header of the
// form "t=<unix ts>,v1=<hex hmac>[,v1=<hex hmac>...]" against payload,
// computed as HMAC-SHA256(secret, "<ts>.<payload>").
func verifySignature(payload []byte, header, secret string) error {
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxSignatureAge {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	return ts, sigs, nil
}
