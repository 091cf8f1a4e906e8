package governance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// SigningSecretEnv is the environment variable holding the HMAC signing
// secret. Its absence does not block a release (tests and local runs use
// defaultSigningSecret) but is a condition the caller should warn on.
const SigningSecretEnv = "PENINAOCUBO_SIGNING_SECRET"

// defaultSigningSecret is used only when SigningSecretEnv is unset; never
// use this in a real deployment.
const defaultSigningSecret = "peninaocubo-default-insecure-signing-secret"

// SigningSecret reads the configured secret, reporting whether the
// environment variable was actually set (so the caller can warn).
func SigningSecret() (secret string, fromEnv bool) {
	if v := os.Getenv(SigningSecretEnv); v != "" {
		return v, true
	}
	return defaultSigningSecret, false
}

// SignManifest computes signature = HMAC-SHA256(secret, canonical_json(manifest
// without its own signature field)) per spec §4.D "Signing".
func SignManifest(secret string, manifestWithoutSignature []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(manifestWithoutSignature)
	return hex.EncodeToString(mac.Sum(nil))
}
