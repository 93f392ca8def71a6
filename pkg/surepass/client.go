package surepass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/troikatech/engage-api/pkg/client"
)

// Client calls the Surepass KYC API with a bearer token.
type Client struct {
	http    *client.HTTPClient
	upload  *http.Client
	baseURL string
	token   string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		http:    client.NewHTTPClient("surepass", timeout),
		upload:  &http.Client{Timeout: 2 * timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (c *Client) WithHTTPClient(h *client.HTTPClient) *Client {
	c.http = h
	return c
}

// Response is the common Surepass envelope.
type Response[T any] struct {
	Data        T      `json:"data"`
	StatusCode  int    `json:"status_code"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	MessageCode string `json:"message_code"`
}

type PANResult struct {
	ClientID  string `json:"client_id"`
	PANNumber string `json:"pan_number"`
	FullName  string `json:"full_name"`
	Category  string `json:"category"`
}

type AadhaarOTPResult struct {
	ClientID     string `json:"client_id"`
	OTPSent      bool   `json:"otp_sent"`
	IfNumber     bool   `json:"if_number"`
	ValidAadhaar bool   `json:"valid_aadhaar"`
}

type AadhaarResult struct {
	ClientID    string `json:"client_id"`
	FullName    string `json:"full_name"`
	DOB         string `json:"dob"`
	Gender      string `json:"gender"`
	CareOf      string `json:"care_of"`
	ZipCode     string `json:"zip"`
	AadhaarLast string `json:"aadhaar_number"`
}

type BankResult struct {
	ClientID      string `json:"client_id"`
	AccountExists bool   `json:"account_exists"`
	FullName      string `json:"full_name"`
	IFSCDetails   struct {
		Bank   string `json:"bank"`
		Branch string `json:"branch"`
	} `json:"ifsc_details"`
}

func post[T any](ctx context.Context, c *Client, path string, body interface{}) (*Response[T], error) {
	var out Response[T]
	headers := map[string]string{"Authorization": "Bearer " + c.token}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+path, headers, body, &out); err != nil {
		return nil, fmt.Errorf("surepass %s failed: %w", path, err)
	}
	if !out.Success {
		return &out, fmt.Errorf("surepass %s rejected: %s", path, out.Message)
	}
	return &out, nil
}

func (c *Client) VerifyPAN(ctx context.Context, pan string) (*Response[PANResult], error) {
	return post[PANResult](ctx, c, "/api/v1/pan/pan", map[string]string{"id_number": pan})
}

func (c *Client) AadhaarGenerateOTP(ctx context.Context, aadhaar string) (*Response[AadhaarOTPResult], error) {
	return post[AadhaarOTPResult](ctx, c, "/api/v1/aadhaar-v2/generate-otp", map[string]string{"id_number": aadhaar})
}

func (c *Client) AadhaarSubmitOTP(ctx context.Context, clientID, otp string) (*Response[AadhaarResult], error) {
	return post[AadhaarResult](ctx, c, "/api/v1/aadhaar-v2/submit-otp", map[string]string{"client_id": clientID, "otp": otp})
}

func (c *Client) VerifyBankAccount(ctx context.Context, accountNumber, ifsc string) (*Response[BankResult], error) {
	return post[BankResult](ctx, c, "/api/v1/bank-verification/", map[string]interface{}{
		"id_number":    accountNumber,
		"ifsc":         ifsc,
		"ifsc_details": true,
	})
}

type PANOCRResult struct {
	ClientID  string `json:"client_id"`
	OCRFields []struct {
		DocumentType string `json:"document_type"`
		PANNumber    struct {
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
		} `json:"pan_number"`
		FullName struct {
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
		} `json:"full_name"`
		DOB struct {
			Value string `json:"value"`
		} `json:"dob"`
	} `json:"ocr_fields"`
}

// PANOCR uploads a PAN card image as multipart/form-data and returns the extracted fields.
func (c *Client) PANOCR(ctx context.Context, filename string, image io.Reader) (*Response[PANOCRResult], error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ocr/pan", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.upload.Do(req)
	if err != nil {
		return nil, fmt.Errorf("surepass ocr failed: %w", err)
	}
	defer resp.Body.Close()

	var out Response[PANOCRResult]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("surepass ocr: failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !out.Success {
		return &out, fmt.Errorf("surepass ocr rejected: %s", out.Message)
	}
	return &out, nil
}
