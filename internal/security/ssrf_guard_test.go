package security

import (
	"errors"
	"net/http"
	"net/netip"
	"testing"
	"time"
)

func TestNewSafeClient(t *testing.T) {
	client := NewSSRFGuard().NewSafeClient(3 * time.Second)

	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 3*time.Second)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected guarded Transport")
	}
}

// TestValidateURL はプロフィール画像URLの静的検証をテストする。
func TestValidateURL(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name   string
		url    string
		reject bool
	}{
		{name: "Googleのプロフィール画像", url: "https://lh3.googleusercontent.com/a/photo.jpg"},
		{name: "httpの公開URL", url: "http://images.example.org/me.png"},
		{name: "前後の空白", url: "  https://images.example.org/me.png "},
		{name: "空文字", url: "", reject: true},
		{name: "スキームなし", url: "images.example.org/me.png", reject: true},
		{name: "file", url: "file:///etc/passwd", reject: true},
		{name: "data URL", url: "data:image/png;base64,AAAA", reject: true},
		{name: "10/8", url: "http://10.1.2.3/a.png", reject: true},
		{name: "172.16/12", url: "http://172.31.255.255/a.png", reject: true},
		{name: "192.168/16", url: "https://192.168.0.10/a.png", reject: true},
		{name: "CGNAT", url: "http://100.64.0.1/a.png", reject: true},
		{name: "ループバック", url: "http://127.0.0.2/a.png", reject: true},
		{name: "メタデータIP", url: "http://169.254.169.254/computeMetadata/v1/", reject: true},
		{name: "IPv6ループバック", url: "http://[::1]/a.png", reject: true},
		{name: "IPv4射影IPv6", url: "http://[::ffff:127.0.0.1]/a.png", reject: true},
		{name: "ゼロアドレス", url: "http://0.0.0.0/a.png", reject: true},
		{name: "localhost大文字", url: "http://LOCALHOST/a.png", reject: true},
		{name: "末尾ドット", url: "http://localhost./a.png", reject: true},
		{name: "内部ドメイン", url: "http://metadata.google.internal/a.png", reject: true},
		{name: "mDNS", url: "http://printer.local/a.png", reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if tt.reject {
				if !errors.Is(err, ErrAvatarURLRejected) {
					t.Errorf("ValidateURL(%q) = %v, want ErrAvatarURLRejected", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func TestValidateURL_CustomPolicy(t *testing.T) {
	policy := DefaultAvatarPolicy()
	policy.Schemes = []string{"https"}
	policy.DeniedPrefix = append(policy.DeniedPrefix, netip.MustParsePrefix("203.0.113.0/24"))
	guard := NewSSRFGuardWithPolicy(policy)

	if err := guard.ValidateURL("http://images.example.org/me.png"); err == nil {
		t.Error("http should be rejected when only https is allowed")
	}
	if err := guard.ValidateURL("https://203.0.113.9/me.png"); err == nil {
		t.Error("custom prefix should be rejected")
	}
	if err := guard.ValidateURL("https://198.51.100.9/me.png"); err != nil {
		t.Errorf("ValidateURL() = %v, want nil", err)
	}
}

func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}
