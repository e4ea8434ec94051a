package device

import "testing"

func TestFingerprintStable(t *testing.T) {
	sig := Signals{
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-US,en;q=0.9",
		AcceptEncoding: "gzip, br",
		ClientIP:       "203.0.113.7",
	}

	a := Fingerprint(sig)
	b := Fingerprint(sig)
	if a != b {
		t.Fatalf("fingerprint must be deterministic: %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}

func TestFingerprintIgnoresLastOctet(t *testing.T) {
	base := Signals{UserAgent: "ua", ClientIP: "203.0.113.7"}
	moved := base
	moved.ClientIP = "203.0.113.250"

	if Fingerprint(base) != Fingerprint(moved) {
		t.Fatal("same /24 must yield the same fingerprint")
	}

	far := base
	far.ClientIP = "203.0.114.7"
	if Fingerprint(base) == Fingerprint(far) {
		t.Fatal("different /24 must yield a different fingerprint")
	}
}

func TestFingerprintSignalOrderMatters(t *testing.T) {
	a := Fingerprint(Signals{UserAgent: "ab", AcceptLanguage: "c"})
	b := Fingerprint(Signals{UserAgent: "a", AcceptLanguage: "bc"})
	if a == b {
		t.Fatal("signal boundaries must be preserved")
	}
}

func TestTruncateIP(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"203.0.113.7", "203.0.113.0"},
		{" 203.0.113.7 ", "203.0.113.0"},
		{"2001:db8:abcd:12:34::1", "2001:db8:abcd::"},
		{"not-an-ip", "not-an-ip"},
		{"", ""},
	}
	for _, c := range cases {
		if got := TruncateIP(c.in); got != c.want {
			t.Fatalf("TruncateIP(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
