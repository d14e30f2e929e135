package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Daraja field limits. The gateway rejects longer values, so they are cut
// before transmission; the stored transaction keeps the full caller input.
const (
	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
)

const timestampLayout = "20060102150405"

// DarajaConfig holds the gateway credentials and endpoints. It is built from
// the process configuration and injected, never read from the environment
// inside the client.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	PartyB         string
	CallbackURL    string
}

// DarajaClient talks to the M-Pesa Daraja API: OAuth token acquisition and
// STK push submission.
type DarajaClient struct {
	cfg    DarajaConfig
	client *http.Client
	now    func() time.Time
}

func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	return &DarajaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

// STKPushParams is the caller-facing request; values arrive untruncated.
type STKPushParams struct {
	Amount           int64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
}

// STKPushAck is the synchronous accept from the gateway. CheckoutRequestID
// is the correlation id the asynchronous callback will carry.
type STKPushAck struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// AccessToken exchanges the client credentials for a short-lived bearer token.
func (c *DarajaClient) AccessToken(ctx context.Context) (string, error) {
	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Token request failed: %v", err)
		return "", fmt.Errorf("%w: token request: %v", ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("Token request failed with status %d: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("%w: status %d: %s", ErrGatewayAuth, resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode token response: %v", ErrGatewayAuth, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", ErrGatewayAuth)
	}

	return tokenResp.AccessToken, nil
}

// password derives the request password: base64 of shortcode+passkey+timestamp.
// The same timestamp must be sent alongside it; the gateway rejects a mismatch.
func (c *DarajaClient) password(at time.Time) (string, string) {
	timestamp := at.Format(timestampLayout)
	raw := c.cfg.ShortCode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// SubmitSTKPush sends the push-payment request with the given bearer token.
func (c *DarajaClient) SubmitSTKPush(ctx context.Context, token string, p STKPushParams) (*STKPushAck, error) {
	password, timestamp := c.password(c.now())

	payload := map[string]string{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            strconv.FormatInt(p.Amount, 10),
		"PartyA":            p.PhoneNumber,
		"PartyB":            c.cfg.PartyB,
		"PhoneNumber":       p.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  truncate(p.AccountReference, maxAccountReferenceLen),
		"TransactionDesc":   truncate(p.TransactionDesc, maxTransactionDescLen),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stk push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create stk push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("STK push request failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("STK push failed with status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, string(body))
	}

	var ack STKPushAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("%w: failed to decode stk push response: %v", ErrGatewayRejected, err)
	}

	if ack.ResponseCode != "0" {
		log.Printf("STK push rejected: code=%s desc=%s", ack.ResponseCode, ack.ResponseDescription)
		return nil, fmt.Errorf("%w: code %s: %s", ErrGatewayRejected, ack.ResponseCode, ack.ResponseDescription)
	}
	if ack.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: accept response missing CheckoutRequestID", ErrGatewayRejected)
	}

	return &ack, nil
}

// InitiateSTKPush acquires a token and submits the push in one call.
func (c *DarajaClient) InitiateSTKPush(ctx context.Context, p STKPushParams) (*STKPushAck, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.SubmitSTKPush(ctx, token, p)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
