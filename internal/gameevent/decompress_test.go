package gameevent

import "testing"

func TestRequireZstd(t *testing.T) {
	d, err := RequireZstd()
	if err != nil {
		t.Fatalf("RequireZstd() returned error: %v", err)
	}

	if d == nil {
		t.Fatal("RequireZstd() returned nil decoder with nil error")
	}
}
