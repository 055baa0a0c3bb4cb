package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Intent is the provider-side payment intent for a garage registration fee.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"clientSecret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	CustomerRef  string            `json:"customer"`
	Metadata     map[string]string `json:"metadata"`
}

// Provider is the outbound payment-provider boundary. The real SDK is an
// external collaborator; the core only needs customer + intent creation.
type Provider interface {
	EnsureCustomer(ctx context.Context, email, name, userID string) (string, error)
	CreateIntent(ctx context.Context, customerRef string, amount int64, metadata map[string]string) (Intent, error)
}

var ErrProviderUnavailable = errors.New("payment provider unavailable")

// HTTPProvider talks to a provider-compatible REST API with a bearer secret.
type HTTPProvider struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPProvider(baseURL, secretKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   baseURL,
		secretKey: secretKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *HTTPProvider) EnsureCustomer(ctx context.Context, email, name, userID string) (string, error) {
	body := map[string]interface{}{
		"email":    email,
		"name":     name,
		"metadata": map[string]string{"userId": userID},
	}

	var out struct {
		ID string `json:"id"`
	}

	err := p.post(ctx, "/v1/customers", body, &out)

	if err != nil {
		return "", err
	}

	return out.ID, nil
}

func (p *HTTPProvider) CreateIntent(ctx context.Context, customerRef string, amount int64, metadata map[string]string) (Intent, error) {
	body := map[string]interface{}{
		"amount":   amount,
		"currency": "usd",
		"customer": customerRef,
		"metadata": metadata,
	}

	var out Intent

	err := p.post(ctx, "/v1/payment_intents", body, &out)

	if err != nil {
		return Intent{}, err
	}

	return out, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)

	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.client.Do(req)

	if err != nil {
		return ErrProviderUnavailable
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// FakeProvider issues deterministic refs without network calls; used in dev
// and in tests.
type FakeProvider struct{}

func NewFakeProvider() *FakeProvider { return &FakeProvider{} }

func (f *FakeProvider) EnsureCustomer(ctx context.Context, email, name, userID string) (string, error) {
	return "cus_" + uuid.NewString(), nil
}

func (f *FakeProvider) CreateIntent(ctx context.Context, customerRef string, amount int64, metadata map[string]string) (Intent, error) {
	id := "pi_" + uuid.NewString()

	return Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Amount:       amount,
		Currency:     "usd",
		CustomerRef:  customerRef,
		Metadata:     metadata,
	}, nil
}
