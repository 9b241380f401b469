package identity

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DeviceCookieName names the cookie carrying the opaque device token.
	DeviceCookieName = "device_id"
	// DefaultTrustedHeader is the header set by the fronting proxy.
	DefaultTrustedHeader = "CF-Connecting-IP"

	forwardedForHeader  = "X-Forwarded-For"
	fallbackIPAddress   = "127.0.0.1"
	deviceCookieMaxAge  = 365 * 24 * time.Hour
	maxDeviceTokenBytes = 64
)

// Identity captures who issued a request as far as anonymous abuse control can tell.
type Identity struct {
	IPAddress string
	DeviceID  string
	// Issued reports that the device token was minted for this request.
	Issued bool
}

// ResolverConfig describes how client addresses and device tokens are resolved.
type ResolverConfig struct {
	TrustedHeader     string
	TrustForwardedFor bool
	CookieSecure      bool
	Clock             func() time.Time
	NewDeviceID       func() string
}

// Resolver derives the client IP and device token of a request.
type Resolver struct {
	trustedHeader     string
	trustForwardedFor bool
	cookieSecure      bool
	now               func() time.Time
	newDeviceID       func() string
}

// NewResolver constructs a Resolver. An empty trusted header falls back to CF-Connecting-IP.
func NewResolver(cfg ResolverConfig) *Resolver {
	header := normalize(cfg.TrustedHeader)
	if header == "" {
		header = DefaultTrustedHeader
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newDeviceID := cfg.NewDeviceID
	if newDeviceID == nil {
		newDeviceID = uuid.NewString
	}
	return &Resolver{
		trustedHeader:     header,
		trustForwardedFor: cfg.TrustForwardedFor,
		cookieSecure:      cfg.CookieSecure,
		now:               clock,
		newDeviceID:       newDeviceID,
	}
}

// Resolve returns the identity of the request, issuing a device cookie on w when the request
// carries no valid one.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) Identity {
	identity := Identity{IPAddress: r.ClientIP(req)}

	if cookie, err := req.Cookie(DeviceCookieName); err == nil && ValidDeviceID(cookie.Value) {
		identity.DeviceID = cookie.Value
		return identity
	}

	identity.DeviceID = r.newDeviceID()
	identity.Issued = true
	http.SetCookie(w, r.deviceCookie(identity.DeviceID))
	return identity
}

// ClientIP resolves the client address: trusted header, X-Forwarded-For, RemoteAddr.
func (r *Resolver) ClientIP(req *http.Request) string {
	if value := normalize(req.Header.Get(r.trustedHeader)); value != "" {
		return value
	}
	if r.trustForwardedFor {
		if forwarded := req.Header.Get(forwardedForHeader); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if value := normalize(first); value != "" {
				return value
			}
		}
	}
	if host := normalize(req.RemoteAddr); host != "" {
		if parsedHost, _, err := net.SplitHostPort(host); err == nil && parsedHost != "" {
			return parsedHost
		}
		return host
	}
	return fallbackIPAddress
}

func (r *Resolver) deviceCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     DeviceCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge / time.Second),
		Expires:  r.now().Add(deviceCookieMaxAge).UTC(),
		HttpOnly: false,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ValidDeviceID accepts non-empty tokens of at most 64 bytes made of letters, digits and dashes.
func ValidDeviceID(value string) bool {
	if value == "" || len(value) > maxDeviceTokenBytes {
		return false
	}
	for index := 0; index < len(value); index++ {
		character := value[index]
		switch {
		case character >= 'a' && character <= 'z':
		case character >= 'A' && character <= 'Z':
		case character >= '0' && character <= '9':
		case character == '-':
		default:
			return false
		}
	}
	return true
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
