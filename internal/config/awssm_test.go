package config

import (
	"testing"
)

func TestResolveValueAWSSMFailsGracefully(t *testing.T) {
	// Without valid AWS credentials this must fail with an error rather
	// than panic; the reference wiring is what matters here.
	if _, err := ResolveValue("${AWS_SM:gridport-nonexistent-secret}"); err == nil {
		t.Error("expected error when AWS credentials are not configured")
	}
}

func TestResolveValuePassthrough(t *testing.T) {
	val, err := ResolveValue("plain-text-value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plain-text-value" {
		t.Errorf("plain values should pass through, got %q", val)
	}
}
