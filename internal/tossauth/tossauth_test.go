package tossauth

import "testing"

func TestBakeAndVerifyReadMacaroon(t *testing.T) {
	svc, err := New("localhost:8443")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	raw, err := svc.Bake("1", ActionRead)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if err := svc.Verify(raw, ActionRead); err != nil {
		t.Fatalf("expected read macaroon to verify for read: %v", err)
	}
	if err := svc.Verify(raw, ActionAdmin); err == nil {
		t.Fatal("expected read macaroon to be rejected for admin action")
	}
}

func TestAdminMacaroonGrantsRead(t *testing.T) {
	svc, _ := New("localhost:8443")
	raw, err := svc.Bake("1", ActionAdmin)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if err := svc.Verify(raw, ActionRead); err != nil {
		t.Fatalf("expected admin macaroon to also grant read: %v", err)
	}
	if err := svc.Verify(raw, ActionAdmin); err != nil {
		t.Fatalf("expected admin macaroon to grant admin: %v", err)
	}
}

func TestVerifyRejectsForeignMacaroon(t *testing.T) {
	svc1, _ := New("localhost:8443")
	svc2, _ := New("localhost:8443")

	raw, err := svc1.Bake("1", ActionAdmin)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if err := svc2.Verify(raw, ActionAdmin); err == nil {
		t.Fatal("expected macaroon rooted at a different key to fail verification")
	}
}

func TestNewIdProducesDistinctValues(t *testing.T) {
	a, err := NewId()
	if err != nil {
		t.Fatalf("NewId failed: %v", err)
	}
	b, err := NewId()
	if err != nil {
		t.Fatalf("NewId failed: %v", err)
	}
	if a == b {
		t.Fatal("expected two calls to NewId to differ")
	}
	if a == "" {
		t.Fatal("expected a non-empty id")
	}
}
