package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyExotelSignature(t *testing.T) {
	form := url.Values{"Status": {"completed"}, "CallSid": {"CA1"}}
	good := sign("s3cret", "CallSid=CA1&Status=completed")

	assert.NoError(t, VerifyExotelSignature("", form, ""))
	assert.NoError(t, VerifyExotelSignature("s3cret", form, good))
	assert.ErrorIs(t, VerifyExotelSignature("s3cret", form, ""), ErrSignatureMissing)
	assert.ErrorIs(t, VerifyExotelSignature("s3cret", form, "deadbeef"), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyExotelSignature("s3cret", form, "not-hex"), ErrSignatureMismatch)
}

func TestVerifyMetaSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	good := "sha256=" + sign("app", string(body))

	tests := []struct {
		name    string
		secret  string
		header  string
		wantErr bool
	}{
		{"no secret configured", "", "", false},
		{"valid", "app", good, false},
		{"missing prefix", "app", sign("app", string(body)), true},
		{"tampered", "app", "sha256=00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyMetaSignature(tt.secret, body, tt.header)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyChallenge(t *testing.T) {
	got, ok := VerifyChallenge("tok", "subscribe", "tok", "123")
	assert.True(t, ok)
	assert.Equal(t, "123", got)

	_, ok = VerifyChallenge("tok", "subscribe", "wrong", "123")
	assert.False(t, ok)

	_, ok = VerifyChallenge("", "subscribe", "", "123")
	assert.False(t, ok)
}

func TestDeduper_NilIsPermissive(t *testing.T) {
	var d *Deduper
	assert.True(t, d.FirstSeen(context.Background(), "wamid.1"))
}
