package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrSignatureMissing  = stderrors.New("webhook signature header missing")
	ErrSignatureMismatch = stderrors.New("webhook signature mismatch")
)

// VerifyMetaSignature checks X-Hub-Signature-256 ("sha256=<hex>") over the
// raw request body. An empty app secret skips verification.
func VerifyMetaSignature(appSecret string, body []byte, header string) error {
	if appSecret == "" {
		return nil
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || sig == "" {
		return ErrSignatureMissing
	}
	return compareHMAC(appSecret, body, sig)
}

// VerifyExotelSignature checks X-Exotel-Signature: hex HMAC-SHA256 of the
// form values sorted by key and joined as k=v&k=v. An empty secret skips
// verification.
func VerifyExotelSignature(secret string, form url.Values, signature string) error {
	if secret == "" {
		return nil
	}
	if signature == "" {
		return ErrSignatureMissing
	}
	return compareHMAC(secret, []byte(canonicalForm(form)), signature)
}

func canonicalForm(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range form[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

func compareHMAC(secret string, payload []byte, gotHex string) error {
	got, err := hex.DecodeString(strings.ToLower(gotHex))
	if err != nil {
		return ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyChallenge answers the hub.mode=subscribe handshake. It returns the
// challenge to echo and whether the token matched.
func VerifyChallenge(verifyToken, mode, token, challenge string) (string, bool) {
	if verifyToken == "" || mode != "subscribe" || token != verifyToken {
		return "", false
	}
	return challenge, true
}
