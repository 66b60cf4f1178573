package instance

import "testing"

func TestIDPrefersEnv(t *testing.T) {
	t.Setenv("CHECKOUT_INSTANCE_ID", "sweeper-2")
	if got := ID(); got != "sweeper-2" {
		t.Fatalf("expected sweeper-2, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv("CHECKOUT_INSTANCE_ID", "")
	if ID() == "" {
		t.Fatal("expected a non-empty instance id")
	}
}
