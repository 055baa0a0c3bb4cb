package payments

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func successPayload() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_1",
				"amount": 5000,
				"currency": "usd",
				"metadata": {"userId": "user-42"}
			}
		}
	}`)
}

func TestVerifyAndParse_ValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := successPayload()

	header := SignatureHeaderValue(payload, testSecret, now.Unix())

	ev, err := VerifyAndParse(payload, header, testSecret, now)

	if err != nil {
		t.Fatalf("VerifyAndParse() error = %v", err)
	}

	if ev.Type != EventPaymentSucceeded {
		t.Fatalf("event type = %q, want %q", ev.Type, EventPaymentSucceeded)
	}

	if ev.UserID() != "user-42" {
		t.Fatalf("user id = %q, want user-42", ev.UserID())
	}
}

func TestVerifyAndParse_Rejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := successPayload()

	tests := []struct {
		name    string
		header  string
		payload []byte
		wantErr error
	}{
		{
			name:    "missing header",
			header:  "",
			payload: payload,
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "wrong secret",
			header:  SignatureHeaderValue(payload, "whsec_other", now.Unix()),
			payload: payload,
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "tampered payload",
			header:  SignatureHeaderValue(payload, testSecret, now.Unix()),
			payload: []byte(`{"type":"payment_intent.succeeded","data":{"object":{"metadata":{"userId":"attacker"}}}}`),
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "stale timestamp",
			header:  SignatureHeaderValue(payload, testSecret, now.Add(-10*time.Minute).Unix()),
			payload: payload,
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "future timestamp",
			header:  SignatureHeaderValue(payload, testSecret, now.Add(10*time.Minute).Unix()),
			payload: payload,
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "garbage header",
			header:  "v1=abc",
			payload: payload,
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "valid signature, broken json",
			header:  SignatureHeaderValue([]byte("{not json"), testSecret, now.Unix()),
			payload: []byte("{not json"),
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "valid signature, missing type",
			header:  SignatureHeaderValue([]byte(`{"id":"evt_2"}`), testSecret, now.Unix()),
			payload: []byte(`{"id":"evt_2"}`),
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyAndParse(tt.payload, tt.header, testSecret, now)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyAndParse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyAndParse_WithinTolerance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := successPayload()

	// a delivery signed four minutes ago is still acceptable
	header := SignatureHeaderValue(payload, testSecret, now.Add(-4*time.Minute).Unix())

	if _, err := VerifyAndParse(payload, header, testSecret, now); err != nil {
		t.Fatalf("VerifyAndParse(4m old) error = %v", err)
	}
}
