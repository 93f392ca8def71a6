package exotel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/metrics"
)

const serviceName = "exotel"

type Config struct {
	Subdomain  string
	AccountSID string
	APIKey     string
	APIToken   string
	// BaseURL overrides https://{subdomain}.exotel.com, mainly for tests.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	accountSID string
	apiKey     string
	apiToken   string
	httpClient *http.Client
}

// normalizeSubdomain removes .exotel.com if already present in subdomain
func normalizeSubdomain(subdomain string) string {
	subdomain = strings.TrimPrefix(subdomain, "https://")
	return strings.TrimSuffix(subdomain, ".exotel.com")
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.exotel.com", normalizeSubdomain(cfg.Subdomain))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		accountSID: cfg.AccountSID,
		apiKey:     cfg.APIKey,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ConnectCallRequest dials From first and bridges it to To, showing CallerID.
type ConnectCallRequest struct {
	From           string
	To             string
	CallerID       string
	CallType       string
	StatusCallback string
	TimeLimit      int
	Record         bool
	CustomField    string
}

// Call mirrors the Call object of the v1 API.
type Call struct {
	Sid            string `json:"Sid"`
	ParentCallSid  string `json:"ParentCallSid"`
	Status         string `json:"Status"`
	Direction      string `json:"Direction"`
	From           string `json:"From"`
	To             string `json:"To"`
	PhoneNumberSid string `json:"PhoneNumberSid"`
	StartTime      string `json:"StartTime"`
	EndTime        string `json:"EndTime"`
	Duration       string `json:"Duration"`
	Price          string `json:"Price"`
	RecordingURL   string `json:"RecordingUrl"`
}

type callEnvelope struct {
	Call Call `json:"Call"`
}

func (c *Client) accountPath(suffix string) string {
	return fmt.Sprintf("%s/v1/Accounts/%s%s", c.baseURL, c.accountSID, suffix)
}

func (c *Client) ConnectCall(ctx context.Context, req ConnectCallRequest) (*Call, error) {
	data := url.Values{}
	data.Set("From", req.From)
	data.Set("To", req.To)
	data.Set("CallerId", req.CallerID)
	callType := req.CallType
	if callType == "" {
		callType = "trans"
	}
	data.Set("CallType", callType)
	if req.StatusCallback != "" {
		data.Set("StatusCallback", req.StatusCallback)
		data.Add("StatusCallbackEvents[0]", "terminal")
	}
	if req.TimeLimit > 0 {
		data.Set("TimeLimit", fmt.Sprintf("%d", req.TimeLimit))
	}
	if req.Record {
		data.Set("Record", "true")
	}
	if req.CustomField != "" {
		data.Set("CustomField", req.CustomField)
	}

	logger.Log.Info("exotel connect call",
		logger.MaskPhone("from", req.From),
		logger.MaskPhone("to", req.To),
		zap.String("caller_id", req.CallerID),
	)

	var env callEnvelope
	if err := c.do(ctx, http.MethodPost, c.accountPath("/Calls/connect.json"), data, &env); err != nil {
		return nil, err
	}
	return &env.Call, nil
}

// GetCall fetches the latest state of a call.
func (c *Client) GetCall(ctx context.Context, callSID string) (*Call, error) {
	if callSID == "" {
		return nil, fmt.Errorf("call sid is required")
	}
	var env callEnvelope
	if err := c.do(ctx, http.MethodGet, c.accountPath("/Calls/"+url.PathEscape(callSID)+".json"), nil, &env); err != nil {
		return nil, err
	}
	return &env.Call, nil
}

// DownloadRecording streams an authenticated recording URL into w.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download recording: status %d", resp.StatusCode)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(c.apiKey, c.apiToken)
	httpReq.Header.Set("Accept", "application/json")
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordServiceCall(serviceName, false, time.Since(start))
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	metrics.RecordServiceCall(serviceName, err == nil && resp.StatusCode < 300, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("exotel API error: %s (status %d)", string(raw), resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
