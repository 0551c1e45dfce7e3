package authapi

import "time"

type registerRequest struct {
	Login       string  `json:"login"`
	Password    string  `json:"password"`
	Email       string  `json:"email"`
	Tel         *string `json:"tel"`
	DisplayName *string `json:"displayName"`
	// DateOfBirth is a calendar date, YYYY-MM-DD or DD.MM.YYYY.
	DateOfBirth *string `json:"dateOfBirth"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type recoveryConfirmRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID string `json:"userID"`
}

type tokenResponse struct {
	AccessToken     string    `json:"access_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Login       string    `json:"login"`
	Email       string    `json:"email"`
	Tel         *string   `json:"tel,omitempty"`
	DisplayName string    `json:"displayName"`
	DateOfBirth *string   `json:"dateOfBirth,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type terminatedResponse struct {
	Terminated int64 `json:"terminated"`
}

type statusResponse struct {
	OK bool `json:"ok"`
}

type sentResponse struct {
	Sent bool `json:"sent"`
}
