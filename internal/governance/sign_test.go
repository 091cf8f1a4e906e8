package governance

import (
	"os"
	"testing"
)

func TestSignManifest_IsDeterministicForSameInput(t *testing.T) {
	a := SignManifest("secret", []byte(`{"id":"rel_1"}`))
	b := SignManifest("secret", []byte(`{"id":"rel_1"}`))
	if a != b {
		t.Fatalf("expected deterministic signature, got %q vs %q", a, b)
	}
}

func TestSignManifest_DiffersOnDifferentSecret(t *testing.T) {
	a := SignManifest("secret-a", []byte(`{"id":"rel_1"}`))
	b := SignManifest("secret-b", []byte(`{"id":"rel_1"}`))
	if a == b {
		t.Fatal("expected different secrets to produce different signatures")
	}
}

func TestSigningSecret_FallsBackToDefaultWhenEnvUnset(t *testing.T) {
	os.Unsetenv(SigningSecretEnv)
	secret, fromEnv := SigningSecret()
	if fromEnv {
		t.Fatal("expected fromEnv false when env var unset")
	}
	if secret != defaultSigningSecret {
		t.Fatalf("expected default secret, got %q", secret)
	}
}

func TestSigningSecret_UsesEnvWhenSet(t *testing.T) {
	t.Setenv(SigningSecretEnv, "from-env-secret")
	secret, fromEnv := SigningSecret()
	if !fromEnv {
		t.Fatal("expected fromEnv true when env var set")
	}
	if secret != "from-env-secret" {
		t.Fatalf("expected env secret, got %q", secret)
	}
}
