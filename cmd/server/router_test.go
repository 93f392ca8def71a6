package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedOrigins(t *testing.T) {
	assert.Nil(t, allowedOrigins("*"))
	assert.Nil(t, allowedOrigins("https://a.example, *"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, allowedOrigins(" https://a.example ,https://b.example,"))
}

func TestOriginAllowed(t *testing.T) {
	check := originAllowed("https://app.example")

	req := httptest.NewRequest("GET", "/ws/tracking", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://APP.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originAllowed("*")(req))
}
