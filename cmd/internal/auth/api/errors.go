package authapi

import (
	"errors"
	"net/http"

	"ava/cmd/identity"
	"ava/cmd/internal/auth/recovery"
	"ava/cmd/internal/auth/session"
	"ava/cmd/security/password"
)

// writeServiceError maps a service error onto the error envelope.
// Unclassified errors are logged and reported as a bare 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, recovery.ErrCodeRejected):
		writeError(w, http.StatusBadRequest, "invalid_code", "invalid or expired code")
	case errors.Is(err, recovery.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "weak_password", policyMessage(err))
	case errors.Is(err, recovery.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, "code_not_found", "no recovery code for this email")
	case errors.Is(err, recovery.ErrDeliveryFailed):
		h.log.Error(event, "err", err)
		writeError(w, http.StatusBadGateway, "delivery_failed", "could not deliver recovery code")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case identity.IsConflict(err):
		field, _ := identity.ConflictField(err)
		writeError(w, http.StatusConflict, "conflict", conflictMessage(field))
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case identity.IsUnauthorized(err):
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", invalidMessage(err))
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// invalidMessage surfaces the validation message of an identity.OpError.
func invalidMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid input"
}

func conflictMessage(field string) string {
	if field == "" {
		return "user already exists"
	}
	return field + " already exists"
}

// policyMessage names the violated rule. Policy errors carry no secret.
func policyMessage(err error) string {
	for _, rule := range []error{
		password.ErrPasswordTooShort,
		password.ErrPasswordTooLong,
		password.ErrMissingUpper,
		password.ErrMissingDigit,
		password.ErrWeakPassword,
	} {
		if errors.Is(err, rule) {
			return rule.Error()
		}
	}
	return "password rejected by policy"
}
