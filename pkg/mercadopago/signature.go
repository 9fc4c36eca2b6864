package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureHeader holds the parsed components of an x-signature header.
type SignatureHeader struct {
	TS string
	V1 string
}

// ParseSignatureHeader splits the comma-separated "ts=...,v1=..." header.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	var parsed SignatureHeader
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			parsed.TS = strings.TrimSpace(value)
		case "v1":
			parsed.V1 = strings.TrimSpace(value)
		}
	}
	if parsed.TS == "" || parsed.V1 == "" {
		return SignatureHeader{}, fmt.Errorf("signature header missing ts or v1 component")
	}
	return parsed, nil
}

// VerifySignature checks an inbound webhook signature against the shared secret.
// The manifest is built both with and without a trailing semicolon to tolerate
// provider formatting drift; either digest matching v1 accepts the request.
func VerifySignature(secret, dataID, requestID, header string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("webhook secret is not configured")
	}

	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s", dataID, requestID, parsed.TS)
	for _, candidate := range []string{manifest + ";", manifest} {
		if hmacMatches(secret, candidate, parsed.V1) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

func hmacMatches(secret, manifest, expectedHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	digest := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(digest), []byte(strings.ToLower(expectedHex)))
}
