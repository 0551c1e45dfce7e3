package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetRefreshCookie(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	rr := httptest.NewRecorder()
	exp := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)
	h.setRefreshCookie(rr, "refresh-token-123", exp)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "refresh_token" || c.Value != "refresh-token-123" {
		t.Fatalf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || c.Path != "/auth" || !c.Secure {
		t.Fatalf("cookie attributes: httpOnly=%v path=%q secure=%v", c.HttpOnly, c.Path, c.Secure)
	}
	if !c.Expires.Equal(exp) {
		t.Fatalf("expires=%v want %v", c.Expires, exp)
	}
}

func TestClearRefreshCookie(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	rr := httptest.NewRecorder()
	h.clearRefreshCookie(rr)

	c := rr.Result().Cookies()[0]
	if c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("expected an expiring cookie, got value=%q maxAge=%d", c.Value, c.MaxAge)
	}
}

func TestRefreshTokenFromCookie(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	if _, ok := h.refreshTokenFromCookie(req); ok {
		t.Fatalf("expected no token without cookie")
	}

	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: " tok-123 "})
	token, ok := h.refreshTokenFromCookie(req)
	if !ok || token != "tok-123" {
		t.Fatalf("unexpected cookie token: %q ok=%v", token, ok)
	}
}
