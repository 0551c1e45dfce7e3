package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ava/cmd/identity"
)

const dateLayout = "2006-01-02"

// dateLayouts are accepted on input; dateLayout is the only output form.
var dateLayouts = []string{dateLayout, "02.01.2006"}

// maxUserAgentLen bounds the device key stored with a session.
const maxUserAgentLen = 512

func toUserResponse(u identity.User) userResponse {
	out := userResponse{
		ID:          u.ID.String(),
		Login:       u.Login,
		Email:       u.Email,
		Tel:         u.Tel,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
	if u.DateOfBirth != nil {
		d := u.DateOfBirth.Format(dateLayout)
		out.DateOfBirth = &d
	}
	return out
}

func parseDate(s *string) (*time.Time, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, true
	}
	raw := strings.TrimSpace(*s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return &d, true
		}
	}
	return nil, false
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// userAgent returns the trimmed User-Agent cut to maxUserAgentLen bytes on a
// rune boundary. Login, refresh and logout all key sessions on this value.
func userAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	cut := maxUserAgentLen
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
