// Package main provides a CI-friendly smoke test for the ava auth API.
//
// Against a running server it validates:
//   - register (201) and duplicate register (409)
//   - local login sets the refresh cookie
//   - refresh rotates the cookie and the old one is rejected
//   - logout clears the session
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const refreshCookie = "refresh_token"

type smokeClient struct {
	base    string
	ua      string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		password = flag.String("password", "SmokeTest123", "Password for the throw-away user")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		ua:      "ava-auth-smoke/1.0",
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	suffix := time.Now().UnixNano()
	login := fmt.Sprintf("smoke%d", suffix)
	reg := map[string]string{
		"login":    login,
		"password": *password,
		"email":    fmt.Sprintf("%s@example.com", login),
	}

	c.mustStatus(root, "register", http.StatusCreated, http.MethodPost, "/auth/register", reg, nil, "")
	c.mustStatus(root, "register duplicate", http.StatusConflict, http.MethodPost, "/auth/register", reg, nil, "")

	res, body := c.mustStatus(root, "login", http.StatusOK, http.MethodPost, "/auth/login/local",
		map[string]string{"login": login, "password": *password}, nil, "")
	first := mustCookie(res, "login")
	mustAccessToken(body, "login")

	res, body = c.mustStatus(root, "refresh", http.StatusOK, http.MethodPost, "/auth/refresh", nil, first, "")
	second := mustCookie(res, "refresh")
	access := mustAccessToken(body, "refresh")
	if second.Value == first.Value {
		fatalf("refresh did not rotate the cookie")
	}

	c.mustStatus(root, "refresh reuse", http.StatusNotFound, http.MethodPost, "/auth/refresh", nil, first, "")
	c.mustStatus(root, "logout", http.StatusOK, http.MethodDelete, "/auth/logout", nil, second, access)
	c.mustStatus(root, "logout again", http.StatusNotFound, http.MethodDelete, "/auth/logout", nil, second, access)

	fmt.Println("OK: auth smoke passed")
}

func (c *smokeClient) mustStatus(parent context.Context, step string, want int, method, path string, payload any, cookie *http.Cookie, bearer string) (*http.Response, []byte) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			fatalf("%s: marshal: %v", step, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		fatalf("%s: build request: %v", step, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		fatalf("%s: %v", step, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		fatalf("%s: read body: %v", step, err)
	}
	if res.StatusCode != want {
		fatalf("%s: status=%d want=%d body=%s", step, res.StatusCode, want, raw)
	}
	if c.verbose {
		fmt.Printf("%-20s %s %s -> %d\n", step, method, path, res.StatusCode)
	}
	return res, raw
}

func mustCookie(res *http.Response, step string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == refreshCookie && c.Value != "" {
			if !c.HttpOnly {
				fatalf("%s: refresh cookie is not HttpOnly", step)
			}
			return c
		}
	}
	fatalf("%s: no %s cookie", step, refreshCookie)
	return nil
}

func mustAccessToken(body []byte, step string) string {
	var tb tokenBody
	if err := json.Unmarshal(body, &tb); err != nil {
		fatalf("%s: decode token body: %v", step, err)
	}
	if tb.AccessToken == "" {
		fatalf("%s: empty access_token", step)
	}
	return tb.AccessToken
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
