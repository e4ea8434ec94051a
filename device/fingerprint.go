// Package device derives best-effort device fingerprints from coarse
// request signals and tracks per-account device state in Redis. A
// fingerprint is a hint for anomaly surfacing ("new device" notices,
// targeted revocation), never an authentication factor.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// Signals are the coarse request attributes a fingerprint is derived
// from. None of them are secret.
type Signals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	ClientIP       string
}

// Fingerprint hashes the signals in fixed order into a stable hex digest.
// The client address is truncated first so DHCP churn within a subnet
// does not produce a new device.
func Fingerprint(sig Signals) string {
	h := sha256.New()
	h.Write([]byte(sig.UserAgent))
	h.Write([]byte{0})
	h.Write([]byte(sig.AcceptLanguage))
	h.Write([]byte{0})
	h.Write([]byte(sig.AcceptEncoding))
	h.Write([]byte{0})
	h.Write([]byte(TruncateIP(sig.ClientIP)))

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// TruncateIP coarsens a client address: IPv4 loses its last octet, IPv6
// keeps its /48. Unparseable input is passed through untouched so the
// fingerprint stays deterministic.
func TruncateIP(addr string) string {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return addr
	}

	if v4 := ip.To4(); v4 != nil {
		return net.IP{v4[0], v4[1], v4[2], 0}.String()
	}

	masked := ip.Mask(net.CIDRMask(48, 128))
	return masked.String()
}
