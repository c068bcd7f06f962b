package realip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
)

func TestGetClientIPString(t *testing.T) {
	tp := realip.NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1", "not-an-ip"})

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct untrusted ignores headers", "203.0.113.5:1234", "1.2.3.4", "", "203.0.113.5"},
		{"trusted proxy uses xff", "10.1.2.3:80", "198.51.100.7, 10.1.2.3", "", "198.51.100.7"},
		{"trusted single ip uses x-real-ip", "192.168.1.1:80", "", "198.51.100.9", "198.51.100.9"},
		{"trusted without headers", "10.0.0.1:80", "", "", "10.0.0.1"},
		{"garbage xff falls through to peer", "10.0.0.1:80", "garbage", "", "10.0.0.1"},
		{"unparseable remote", "nonsense", "", "", "unknown"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := tp.GetClientIPString(r); got != tt.want {
				t.Errorf("GetClientIPString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNilTrustedProxies(t *testing.T) {
	var tp *realip.TrustedProxies
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:80"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	if got := tp.GetClientIPString(r); got != "10.0.0.1" {
		t.Errorf("nil proxies must use peer address, got %q", got)
	}
}
