package sftp

import "testing"

func TestAddrDefaultsPort22(t *testing.T) {
	o := Options{Host: "example.com"}
	if got := o.addr(); got != "example.com:22" {
		t.Errorf("addr() = %q, want default port 22", got)
	}
	o.Port = 2222
	if got := o.addr(); got != "example.com:2222" {
		t.Errorf("addr() = %q, want explicit port 2222", got)
	}
}

func TestAuthMethodsPrefersKeyOverPassword(t *testing.T) {
	// A backend with both a (bogus) key and a password set should try to
	// parse the key and fail there rather than silently falling back to
	// password auth, matching the priority order in
	// original_source/.../__init__.py's backend selection.
	b := New(Options{Pass: "hunter2", KeyPEM: []byte("not a real key")})
	_, err := b.authMethods()
	if err == nil {
		t.Fatal("expected key-parse failure to take priority over password auth")
	}
}

func TestAuthMethodsFallsBackToPassword(t *testing.T) {
	b := New(Options{Pass: "hunter2"})
	methods, err := b.authMethods()
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected exactly one auth method, got %d", len(methods))
	}
}
