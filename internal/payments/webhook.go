package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Webhook event types the workflow reacts to.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// SignatureHeader carries the provider signature on webhook deliveries.
const SignatureHeader = "Garage-Signature"

// signatureTolerance bounds how stale a signed timestamp may be; replays of
// old deliveries outside the window are rejected.
const signatureTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event is the parsed webhook envelope. Data carries the payment intent the
// event refers to; the owning user rides in the intent metadata.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// UserID extracts the garage owner the event belongs to.
func (e Event) UserID() string {
	return e.Data.Object.Metadata["userId"]
}

// VerifyAndParse checks the `t=<unix>,v1=<hex hmac>` signature over
// "<t>.<body>" with the webhook secret and decodes the event. Deliveries are
// at-least-once; the caller's transition handling is idempotent.
func VerifyAndParse(payload []byte, sigHeader, secret string, now time.Time) (Event, error) {
	ts, sig, err := parseSignatureHeader(sigHeader)

	if err != nil {
		return Event{}, err
	}

	issued := time.Unix(ts, 0)

	if now.Sub(issued) > signatureTolerance || issued.Sub(now) > signatureTolerance {
		return Event{}, ErrInvalidSignature
	}

	expected := Sign(payload, secret, ts)

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return Event{}, ErrInvalidSignature
	}

	var ev Event

	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, ErrInvalidPayload
	}

	if ev.Type == "" {
		return Event{}, ErrInvalidPayload
	}

	return ev, nil
}

// Sign computes the v1 signature for a payload at a given unix timestamp.
// Exported for tests and for provider simulators.
func Sign(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue renders the header a provider would send.
func SignatureHeaderValue(payload []byte, secret string, ts int64) string {
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + Sign(payload, secret, ts)
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	if strings.TrimSpace(header) == "" {
		return 0, "", ErrInvalidSignature
	}

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")

		if !found {
			continue
		}

		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)

			if err != nil {
				return 0, "", ErrInvalidSignature
			}
		case "v1":
			sig = v
		}
	}

	if ts == 0 || sig == "" {
		return 0, "", ErrInvalidSignature
	}

	return ts, sig, nil
}
