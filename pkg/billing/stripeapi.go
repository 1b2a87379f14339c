package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// stripeClient is a narrow, read-only client against the pieces of the
// Stripe REST API the reducer needs to resolve tier information — just
// enough to retrieve a subscription and its product, not a general SDK.
type stripeClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func newStripeClient(apiKey string) *stripeClient {
	return &stripeClient{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    "https://api.stripe.com/v1",
	}
}

type stripePrice struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price stripePrice `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscription) price() (stripePrice, bool) {
	if len(s.Items.Data) == 0 {
		return stripePrice{}, false
	}
	return s.Items.Data[0].Price, true
}

type stripeProduct struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

func (c *stripeClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building stripe request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling stripe api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe api %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (stripeSubscription, error) {
	var s stripeSubscription
	err := c.get(ctx, "/subscriptions/"+url.PathEscape(strings.TrimSpace(id)), &s)
	return s, err
}

func (c *stripeClient) GetProduct(ctx context.Context, id string) (stripeProduct, error) {
	var p stripeProduct
	err := c.get(ctx, "/products/"+url.PathEscape(strings.TrimSpace(id)), &p)
	return p, err
}
