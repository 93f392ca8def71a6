package surepass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troikatech/engage-api/pkg/client"
	"github.com/troikatech/engage-api/pkg/retry"
)

func testClient(url string) *Client {
	return NewClient(url, "tok", time.Second).
		WithHTTPClient(client.NewHTTPClient("surepass-test", time.Second).WithRetry(retry.Config{MaxAttempts: 1}))
}

func TestVerifyPAN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/pan/pan", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ABCDE1234F", in["id_number"])
		_, _ = w.Write([]byte(`{"success":true,"status_code":200,"data":{"client_id":"c1","pan_number":"ABCDE1234F","full_name":"RAVI KUMAR"}}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).VerifyPAN(context.Background(), "ABCDE1234F")
	require.NoError(t, err)
	assert.Equal(t, "RAVI KUMAR", res.Data.FullName)
}

func TestAadhaarOTPFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/aadhaar-v2/generate-otp":
			_, _ = w.Write([]byte(`{"success":true,"data":{"client_id":"cl_1","otp_sent":true,"valid_aadhaar":true}}`))
		case "/api/v1/aadhaar-v2/submit-otp":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "cl_1", in["client_id"])
			_, _ = w.Write([]byte(`{"success":true,"data":{"client_id":"cl_1","full_name":"Asha Rao","gender":"F"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	otp, err := c.AadhaarGenerateOTP(context.Background(), "123412341234")
	require.NoError(t, err)
	assert.True(t, otp.Data.OTPSent)

	res, err := c.AadhaarSubmitOTP(context.Background(), otp.Data.ClientID, "123456")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", res.Data.FullName)
}

func TestVerifyBankAccount_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid IFSC"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).VerifyBankAccount(context.Background(), "0001", "BAD0")
	assert.ErrorContains(t, err, "Invalid IFSC")
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestPANOCR_SendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ocr/pan", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "pan.jpg", header.Filename)
		_, _ = w.Write([]byte(`{"success":true,"data":{"client_id":"o1","ocr_fields":[{"document_type":"pan","pan_number":{"value":"ABCDE1234F","confidence":98.5}}]}}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).PANOCR(context.Background(), "pan.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	require.Len(t, res.Data.OCRFields, 1)
	assert.Equal(t, "ABCDE1234F", res.Data.OCRFields[0].PANNumber.Value)
}
