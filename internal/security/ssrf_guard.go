package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はプロフィール画像の取得経路を守る。
// 画像URLはアイデンティティプロバイダから渡されるため、サーバーから見れば外部入力として扱う。
type SSRFGuardService interface {
	// NewSafeClient はDNS解決後の接続先も検証するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は接続前に判定できる範囲でURLを検証する。
	ValidateURL(rawURL string) error
}

var (
	// ErrAvatarURLRejected はアバターURLが取得対象として不適切な場合のエラー。
	ErrAvatarURLRejected = errors.New("avatar url rejected")
)

// AvatarPolicy はアバター取得で許可する宛先の条件。
type AvatarPolicy struct {
	Schemes       []string
	Ports         []uint16
	DeniedPrefix  []netip.Prefix
	DeniedSuffix  []string
	DeniedExactly []string
}

// DefaultAvatarPolicy は公開インターネット上のhttp(s)のみを許可するポリシーを返す。
func DefaultAvatarPolicy() AvatarPolicy {
	return AvatarPolicy{
		Schemes: []string{"https", "http"},
		Ports:   []uint16{443, 80},
		DeniedPrefix: []netip.Prefix{
			netip.MustParsePrefix("0.0.0.0/8"),
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("100.64.0.0/10"),
			netip.MustParsePrefix("127.0.0.0/8"),
			netip.MustParsePrefix("169.254.0.0/16"),
			netip.MustParsePrefix("172.16.0.0/12"),
			netip.MustParsePrefix("192.168.0.0/16"),
			netip.MustParsePrefix("::1/128"),
			netip.MustParsePrefix("fc00::/7"),
			netip.MustParsePrefix("fe80::/10"),
		},
		DeniedSuffix:  []string{".localhost", ".internal", ".local"},
		DeniedExactly: []string{"localhost"},
	}
}

type ssrfGuard struct {
	policy AvatarPolicy
}

// NewSSRFGuard は既定ポリシーのガードを返す。
func NewSSRFGuard() *ssrfGuard {
	return NewSSRFGuardWithPolicy(DefaultAvatarPolicy())
}

// NewSSRFGuardWithPolicy は任意のポリシーでガードを返す。
func NewSSRFGuardWithPolicy(policy AvatarPolicy) *ssrfGuard {
	return &ssrfGuard{policy: policy}
}

// NewSafeClient はsafeurlのDialer検証付きクライアントを返す。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	ports := make([]int, 0, len(g.policy.Ports))
	for _, p := range g.policy.Ports {
		ports = append(ports, int(p))
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.policy.Schemes...).
		SetAllowedPorts(ports...).
		Build()
	return safeurl.Client(cfg).Client
}

func (g *ssrfGuard) ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAvatarURLRejected, err)
	}
	if !slices.Contains(g.policy.Schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: scheme %q", ErrAvatarURLRejected, u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrAvatarURLRejected)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return g.checkAddr(addr.Unmap())
	}
	return g.checkName(host)
}

func (g *ssrfGuard) checkAddr(addr netip.Addr) error {
	if addr.IsUnspecified() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return fmt.Errorf("%w: address %s", ErrAvatarURLRejected, addr)
	}
	for _, prefix := range g.policy.DeniedPrefix {
		if prefix.Contains(addr) {
			return fmt.Errorf("%w: address %s in %s", ErrAvatarURLRejected, addr, prefix)
		}
	}
	return nil
}

func (g *ssrfGuard) checkName(host string) error {
	if slices.Contains(g.policy.DeniedExactly, host) {
		return fmt.Errorf("%w: host %s", ErrAvatarURLRejected, host)
	}
	for _, suffix := range g.policy.DeniedSuffix {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: host %s", ErrAvatarURLRejected, host)
		}
	}
	return nil
}
