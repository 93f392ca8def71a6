package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"otp", true},
		{"user_OTP", true},
		{"Password", true},
		{"aadhaar_number", true},
		{"pan_card", true},
		{"bank_account_no", true},
		{"upi_pin", true},
		{"company", true},
		{"first_name", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSensitiveKey(tt.name))
		})
	}
}

func TestMaskPhoneNumber(t *testing.T) {
	assert.Equal(t, "+919876••3210", MaskPhoneNumber("+919876543210"))
	assert.Equal(t, "+141555•0100", MaskPhoneNumber("+14155550100"))
	assert.Equal(t, "•••••3210", MaskPhoneNumber("987653210"))
	assert.Equal(t, "", MaskPhoneNumber(""))
	assert.Equal(t, "•••", MaskPhoneNumber("123"))
}

func TestIsE164(t *testing.T) {
	for in, want := range map[string]bool{
		"+919876543210":     true,
		"+14155550100":      true,
		"919876543210":      false,
		"+0919876543210":    false,
		"+91 98765 43210":   false,
		"+1234567890123456": false,
		"+1":                false,
	} {
		assert.Equal(t, want, IsE164(in), in)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"98765 43210", "+919876543210"},
		{"09876543210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"+14155550100", "+14155550100"},
		{"0014155550100", "+14155550100"},
		{"(0) 98765-43210", "+919876543210"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
	assert.Equal(t, "919876543210", WhatsAppNumber("+91 98765-43210"))
	assert.Equal(t, "+14155550100", FromWhatsAppID("14155550100"))
}

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
		wantSkip  int64
	}{
		{"", 1, 50, 0},
		{"?page=3&limit=20", 3, 20, 40},
		{"?page=-1&limit=500", 1, 100, 0},
		{"?page=abc&limit=0", 1, 50, 0},
		{"?page=2&page_size=10", 2, 10, 10},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/x"+tt.query, nil)

		p := ParsePagination(c)
		assert.Equal(t, tt.wantPage, p.Page, tt.query)
		assert.Equal(t, tt.wantLimit, p.Limit, tt.query)
		assert.Equal(t, tt.wantSkip, p.Skip(), tt.query)
	}
}

func TestNewPage(t *testing.T) {
	p := PaginationParams{Page: 2, Limit: 10}

	page := NewPage([]string{"a", "b"}, p, 12)
	assert.Equal(t, 2, page.Count)
	assert.False(t, page.HasMore)

	page = NewPage([]string{"a", "b"}, p, 40)
	assert.True(t, page.HasMore)

	empty := NewPage[string](nil, p, 0)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 0, empty.Count)
}
