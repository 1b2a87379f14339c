package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func signedHeader(t *testing.T, payload []byte, ts int64, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := signedHeader(t, payload, time.Now().Unix(), testSecret)

	if err := verifySignature(payload, header, testSecret); err != nil {
		t.Errorf("verifySignature: %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := signedHeader(t, payload, time.Now().Unix(), "whsec_other")

	err := verifySignature(payload, header, testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := signedHeader(t, payload, time.Now().Unix(), testSecret)

	tampered := []byte(`{"id":"evt_2"}`)
	err := verifySignature(tampered, header, testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	stale := time.Now().Add(-10 * time.Minute).Unix()
	header := signedHeader(t, payload, stale, testSecret)

	err := verifySignature(payload, header, testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	err := verifySignature([]byte("{}"), "not a valid header", testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestParseSignatureHeader_MultipleSignatures(t *testing.T) {
	header := "t=1700000000,v1=aaa,v1=bbb"
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		t.Fatalf("parseSignatureHeader: %v", err)
	}
	if ts != 1700000000 {
		t.Errorf("ts = %d, want 1700000000", ts)
	}
	if len(sigs) != 2 || sigs[0] != "aaa" || sigs[1] != "bbb" {
		t.Errorf("sigs = %v, want [aaa bbb]", sigs)
	}
}
