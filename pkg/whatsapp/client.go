package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/troikatech/engage-api/pkg/client"
)

const defaultGraphURL = "https://graph.facebook.com"

type Config struct {
	APIVersion        string
	AccessToken       string
	PhoneNumberID     string
	BusinessAccountID string
	// BaseURL overrides the Graph host, mainly for tests.
	BaseURL string
	Timeout time.Duration
}

// Client talks to the WhatsApp Cloud API on the Meta Graph API.
type Client struct {
	http          *client.HTTPClient
	baseURL       string
	accessToken   string
	phoneNumberID string
	wabaID        string
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultGraphURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v19.0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:          client.NewHTTPClient("whatsapp", timeout),
		baseURL:       strings.TrimRight(base, "/") + "/" + version,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		wabaID:        cfg.BusinessAccountID,
	}
}

// WithHTTPClient swaps the resilient transport, e.g. to tune retries in tests.
func (c *Client) WithHTTPClient(h *client.HTTPClient) *Client {
	c.http = h
	return c
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type Language struct {
	Code string `json:"code"`
}

// Parameter is a single template variable value.
type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Component fills one template component (header, body, button) at send time.
type Component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      *int        `json:"index,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

type templateBody struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type messageRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

// SendResponse is returned by the messages endpoint.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the wamid of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

func (c *Client) send(ctx context.Context, msg messageRequest) (*SendResponse, error) {
	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	var out SendResponse
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	if err := c.http.DoJSON(ctx, http.MethodPost, endpoint, c.headers(), msg, &out); err != nil {
		return nil, fmt.Errorf("whatsapp send failed: %w", err)
	}
	return &out, nil
}

// SendText sends a free-form text message. to is digits only, no '+'.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	return c.send(ctx, messageRequest{To: to, Type: "text", Text: &textBody{Body: body}})
}

// SendTemplate sends an approved template message.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, components []Component) (*SendResponse, error) {
	return c.send(ctx, messageRequest{
		To:   to,
		Type: "template",
		Template: &templateBody{
			Name:       name,
			Language:   Language{Code: language},
			Components: components,
		},
	})
}

// TemplateButton is a button definition inside a BUTTONS component.
type TemplateButton struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// TemplateComponent is a component of a template definition.
type TemplateComponent struct {
	Type    string           `json:"type" bson:"type"`
	Format  string           `json:"format,omitempty" bson:"format,omitempty"`
	Text    string           `json:"text,omitempty" bson:"text,omitempty"`
	Buttons []TemplateButton `json:"buttons,omitempty" bson:"buttons,omitempty"`
}

// Template is a message template as Meta stores it.
type Template struct {
	ID         string              `json:"id,omitempty"`
	Name       string              `json:"name"`
	Language   string              `json:"language"`
	Category   string              `json:"category"`
	Status     string              `json:"status,omitempty"`
	Components []TemplateComponent `json:"components"`
}

type CreateTemplateResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

// CreateTemplate submits a template for review.
func (c *Client) CreateTemplate(ctx context.Context, t Template) (*CreateTemplateResponse, error) {
	t.ID, t.Status = "", ""
	var out CreateTemplateResponse
	endpoint := fmt.Sprintf("%s/%s/message_templates", c.baseURL, c.wabaID)
	if err := c.http.DoJSON(ctx, http.MethodPost, endpoint, c.headers(), t, &out); err != nil {
		return nil, fmt.Errorf("whatsapp create template failed: %w", err)
	}
	return &out, nil
}

type listTemplatesResponse struct {
	Data   []Template `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// ListTemplates walks every page of the business account's templates.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var all []Template
	after := ""
	for {
		q := url.Values{}
		q.Set("fields", "id,name,language,category,status,components")
		q.Set("limit", strconv.Itoa(100))
		if after != "" {
			q.Set("after", after)
		}
		endpoint := fmt.Sprintf("%s/%s/message_templates?%s", c.baseURL, c.wabaID, q.Encode())

		var page listTemplatesResponse
		if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, &page); err != nil {
			return nil, fmt.Errorf("whatsapp list templates failed: %w", err)
		}
		all = append(all, page.Data...)

		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			return all, nil
		}
		after = page.Paging.Cursors.After
	}
}

// DeleteTemplate removes every language of the named template.
func (c *Client) DeleteTemplate(ctx context.Context, name string) error {
	endpoint := fmt.Sprintf("%s/%s/message_templates?name=%s", c.baseURL, c.wabaID, url.QueryEscape(name))
	if err := c.http.DoJSON(ctx, http.MethodDelete, endpoint, c.headers(), nil, nil); err != nil {
		return fmt.Errorf("whatsapp delete template failed: %w", err)
	}
	return nil
}
