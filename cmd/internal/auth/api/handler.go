package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ava/cmd/identity"
	"ava/cmd/internal/auth/recovery"
	"ava/cmd/internal/auth/session"
	"ava/cmd/internal/metrics"
	"ava/cmd/security/password"
)

// Deps are the services the auth endpoints are built on.
type Deps struct {
	Users     identity.Store
	Passwords password.Hasher
	Policy    recovery.Policy
	Sessions  *session.Service
	Recovery  *recovery.Service
}

// Handler wires HTTP auth endpoints to the identity, session and recovery services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users     identity.Store
	passwords password.Hasher
	policy    recovery.Policy
	sessions  *session.Service
	recovery  *recovery.Service

	auditor Auditor
	metrics *metrics.Registry
	now     func() time.Time

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithAuditor overrides the default no-op auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.auditor = a
		}
	}
}

// WithMetrics enables auth event counters.
func WithMetrics(m *metrics.Registry) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Users == nil || deps.Passwords == nil || deps.Policy == nil || deps.Sessions == nil || deps.Recovery == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		users:     deps.Users,
		passwords: deps.Passwords,
		policy:    deps.Policy,
		sessions:  deps.Sessions,
		recovery:  deps.Recovery,
		auditor:   NopAuditor{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	hash, err := h.passwords.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	h.dummyHash = hash

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login/local", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/sessions", h.handleTerminateAll)
	mux.HandleFunc("/auth/me", h.handleMe)
	mux.HandleFunc("/auth/recovery/email", h.handleRecoveryRequest)
	mux.HandleFunc("/auth/recovery/email/confirmation", h.handleRecoveryConfirm)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req registerRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Login) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "login, email and password are required")
		return
	}
	dob, ok := parseDate(req.DateOfBirth)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "dateOfBirth must be YYYY-MM-DD or DD.MM.YYYY")
		return
	}
	if err := h.policy.Validate(req.Password); err != nil {
		h.metrics.Auth("register", "invalid")
		writeError(w, http.StatusBadRequest, "weak_password", policyMessage(err))
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		h.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Login:        req.Login,
		Email:        req.Email,
		Tel:          req.Tel,
		DisplayName:  req.DisplayName,
		DateOfBirth:  dob,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		h.metrics.Auth("register", resultOf(err))
		h.writeServiceError(w, "auth.register.fail", err)
		return
	}

	h.metrics.Auth("register", "success")
	h.audit(ctx, AuditEvent{Action: "auth.register", UserID: u.ID, IP: clientIP(r, h.cfg.TrustProxy), UserAgent: userAgent(r)})
	writeJSON(w, http.StatusCreated, registerResponse{UserID: u.ID.String()})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "login and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := userAgent(r)
	login := identity.NormalizeLogin(req.Login)

	creds, err := h.users.GetCredentialsByLogin(ctx, req.Login)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.metrics.Auth("login", "error")
			h.writeServiceError(w, "auth.login.lookup.fail", err)
			return
		}
		// Timing resistance: perform a dummy verify when user is missing.
		_ = h.passwords.Compare(req.Password, h.dummyHash)
		h.loginFailed(w, r, AuditEvent{Action: "auth.login.failed", IP: ip, UserAgent: ua, Meta: map[string]any{"login": login, "reason": "not_found"}})
		return
	}

	if !h.passwords.Compare(req.Password, creds.PasswordHash) {
		h.loginFailed(w, r, AuditEvent{Action: "auth.login.failed", UserID: creds.UserID, IP: ip, UserAgent: ua, Meta: map[string]any{"login": login, "reason": "bad_password"}})
		return
	}

	issued, err := h.sessions.CreateSession(ctx, now, creds.UserID, session.Device{UserAgent: ua, IP: ip})
	if err != nil {
		h.metrics.Auth("login", "error")
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.Auth("login", "success")
	h.audit(ctx, AuditEvent{Action: "auth.login.success", UserID: creds.UserID, SessionID: issued.SessionID, IP: ip, UserAgent: ua})

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: issued.AccessToken, TokenType: "Bearer", AccessExpiresAt: issued.AccessExp})
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, ev AuditEvent) {
	h.metrics.Auth("login", "unauthorized")
	h.audit(r.Context(), ev)
	writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	refreshToken, ok := h.refreshTokenFromCookie(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token cookie is required")
		return
	}
	userID, err := h.sessions.RefreshSubject(refreshToken)
	if err != nil {
		h.metrics.Auth("refresh", "invalid")
		writeError(w, http.StatusBadRequest, "invalid_token", "invalid refresh token")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := userAgent(r)

	issued, err := h.sessions.UpdateRefreshTokens(ctx, h.now().UTC(), session.RefreshInput{
		UserID:       userID,
		RefreshToken: refreshToken,
		UserAgent:    ua,
		IP:           ip,
	})
	if err != nil {
		h.metrics.Auth("refresh", resultOf(err))
		if errors.Is(err, session.ErrSessionNotFound) {
			h.clearRefreshCookie(w)
		}
		h.writeServiceError(w, "auth.refresh.fail", err)
		return
	}

	h.metrics.Auth("refresh", "success")
	h.audit(ctx, AuditEvent{Action: "auth.refresh.success", UserID: userID, SessionID: issued.SessionID, IP: ip, UserAgent: ua})

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: issued.AccessToken, TokenType: "Bearer", AccessExpiresAt: issued.AccessExp})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	refreshToken, _ := h.refreshTokenFromCookie(r)
	ua := userAgent(r)

	err := h.sessions.Logout(ctx, session.LogoutInput{
		UserID:       claims.UserID,
		RefreshToken: refreshToken,
		UserAgent:    ua,
	})
	if err != nil {
		h.metrics.Auth("logout", resultOf(err))
		h.writeServiceError(w, "auth.logout.fail", err)
		return
	}

	h.metrics.Auth("logout", "success")
	h.audit(ctx, AuditEvent{Action: "auth.logout", UserID: claims.UserID, IP: clientIP(r, h.cfg.TrustProxy), UserAgent: ua})
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, statusResponse{OK: true})
}

func (h *Handler) handleTerminateAll(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	n, err := h.sessions.TerminateAll(ctx, claims.UserID)
	if err != nil {
		h.metrics.Auth("logout_all", resultOf(err))
		h.writeServiceError(w, "auth.logout_all.fail", err)
		return
	}

	h.metrics.Auth("logout_all", "success")
	h.audit(ctx, AuditEvent{
		Action:    "auth.logout_all",
		UserID:    claims.UserID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: userAgent(r),
		Meta:      map[string]any{"terminated": n},
	})
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, terminatedResponse{Terminated: n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.writeServiceError(w, "auth.me.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleRecoveryRequest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req recoveryRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	if err := h.recovery.RequestRecovery(ctx, h.now().UTC(), req.Email); err != nil {
		h.metrics.Auth("recovery_request", resultOf(err))
		h.writeServiceError(w, "auth.recovery.request.fail", err)
		return
	}

	h.metrics.Auth("recovery_request", "success")
	h.audit(ctx, AuditEvent{
		Action:    "auth.recovery.requested",
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: userAgent(r),
		Meta:      map[string]any{"email": identity.NormalizeEmail(req.Email)},
	})
	writeJSON(w, http.StatusOK, sentResponse{Sent: true})
}

func (h *Handler) handleRecoveryConfirm(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req recoveryConfirmRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, code and password are required")
		return
	}

	ctx := r.Context()
	err := h.recovery.ConfirmRecovery(ctx, h.now().UTC(), recovery.ConfirmInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.Password,
	})
	if err != nil {
		h.metrics.Auth("recovery_confirm", resultOf(err))
		h.writeServiceError(w, "auth.recovery.confirm.fail", err)
		return
	}

	h.metrics.Auth("recovery_confirm", "success")
	h.audit(ctx, AuditEvent{
		Action:    "auth.recovery.confirmed",
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: userAgent(r),
		Meta:      map[string]any{"email": identity.NormalizeEmail(req.Email)},
	})
	writeJSON(w, http.StatusOK, statusResponse{OK: true})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.ValidateAccessToken(token, h.now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

// resultOf is the metrics label for a failed operation.
func resultOf(err error) string {
	switch {
	case identity.IsNotFound(err):
		return "not_found"
	case identity.IsConflict(err):
		return "conflict"
	case identity.IsInvalidInput(err):
		return "invalid"
	case identity.IsUnauthorized(err):
		return "unauthorized"
	default:
		return "error"
	}
}
