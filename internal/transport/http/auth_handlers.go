package httptransport

import (
	"context"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
)

const refreshCookie = "refreshToken"

type AuthHandlers struct {
	service    AuthServices
	refreshTTL int
}

type AuthServices interface {
	Register(ctx context.Context, caller *domains.Principal, input domains.UserCreate) (domains.User, error)
	Login(ctx context.Context, email string, password string) (domains.TokenPair, domains.User, error)
	Refresh(ctx context.Context, refreshToken string) (domains.TokenPair, error)
	Me(ctx context.Context, userID int64) (domains.User, error)
	Authenticate(token string) (domains.Principal, error)
}

// NewAuthHandlers takes the refresh token lifetime in seconds for the cookie max-age.
func NewAuthHandlers(service AuthServices, refreshTTL int) *AuthHandlers {
	return &AuthHandlers{
		service:    service,
		refreshTTL: refreshTTL,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	userData, ok := readBody[domains.UserCreate](w, r)
	if !ok {
		return
	}

	var principal *domains.Principal
	if p, ok := httpx.PrincipalFromContext(r.Context()); ok {
		principal = &p
	}

	user, err := h.service.Register(r.Context(), principal, userData)
	if err != nil {
		writeError(w, r, "Register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	loginData, ok := readBody[LoginData](w, r)
	if !ok {
		return
	}

	tokens, user, err := h.service.Login(r.Context(), loginData.Email, loginData.Password)
	if err != nil {
		writeError(w, r, "Login", err)
		return
	}
	h.setRefreshCookie(w, tokens.RefreshToken)
	httpx.JSON(w, http.StatusOK, LoginResponse{TokenPair: tokens, User: user})
}

// Refresh accepts the refresh token from the JSON body or the refreshToken cookie.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if r.ContentLength > 0 {
		body, ok := readBody[TokenRefreshRequest](w, r)
		if !ok {
			return
		}
		token = body.RefreshToken
	}
	if token == "" {
		if cookie, err := r.Cookie(refreshCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		httpx.Error(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, "Refresh", err)
		return
	}
	h.setRefreshCookie(w, tokens.RefreshToken)
	httpx.JSON(w, http.StatusOK, tokens)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	user, err := h.service.Me(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, "Me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *AuthHandlers) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/api/auth",
		MaxAge:   h.refreshTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
