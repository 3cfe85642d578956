package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gym-session/internal/domain"
	"gym-session/utils/logger"

	"github.com/labstack/echo/v4"
)

// AuthStateReader is the part of the auth session the handlers use.
type AuthStateReader interface {
	State() domain.AuthState
	RefreshUser(ctx context.Context) error
}

// AuthHandler serves the /auth endpoints the SPA uses to sign in and out and
// to read the current auth state.
type AuthHandler struct {
	state    AuthStateReader
	signIn   domain.SignInInitiator
	sessions domain.SessionRefresher
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(state AuthStateReader, signIn domain.SignInInitiator, sessions domain.SessionRefresher, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{state: state, signIn: signIn, sessions: sessions, logger: l}
}

// Register mounts the handlers under g.
func (h *AuthHandler) Register(g *echo.Group) {
	g.GET("/state", h.State)
	g.POST("/login", h.Login)
	g.POST("/code", h.SendCode)
	g.POST("/code/verify", h.VerifyCode)
	g.GET("/oauth/:provider", h.OAuth)
	g.POST("/logout", h.Logout)
	g.POST("/refresh-user", h.RefreshUser)
}

// stateResponse renders AuthState with the tri-state as true, false or null.
type stateResponse struct {
	Status          string          `json:"status"`
	IsAuthenticated *bool           `json:"isAuthenticated"`
	User            *domain.Profile `json:"user"`
	IsLoading       bool            `json:"isLoading"`
}

func newStateResponse(s domain.AuthState) stateResponse {
	resp := stateResponse{Status: s.Status.String(), User: s.User, IsLoading: s.Loading}
	if v, known := s.IsAuthenticated(); known {
		resp.IsAuthenticated = &v
	}
	return resp
}

type passwordLoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

type sendCodeResponse struct {
	FlowID string `json:"flow_id"`
}

type verifyCodeRequest struct {
	FlowID string `json:"flow_id"`
	Email  string `json:"email"`
	Code   string `json:"code"`
}

// State returns the current auth state.
func (h *AuthHandler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, newStateResponse(h.state.State()))
}

// Login signs in with identifier and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req passwordLoginRequest
	if err := c.Bind(&req); err != nil || req.Identifier == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and password are required")
	}

	ctx := logger.WithOperation(c.Request().Context(), "login_password")
	session, err := h.signIn.SignInWithPassword(ctx, req.Identifier, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "password login failed", "error", err)
		return mapDomainError(err)
	}
	h.logger.InfoContext(logger.WithUserID(ctx, userIDOf(session)), "signed in")

	return c.JSON(http.StatusOK, newStateResponse(h.state.State()))
}

// SendCode starts a one-time-code login and returns the flow to verify against.
func (h *AuthHandler) SendCode(c echo.Context) error {
	var req sendCodeRequest
	if err := c.Bind(&req); err != nil || !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "a valid email is required")
	}

	ctx := logger.WithOperation(c.Request().Context(), "login_code_send")
	flowID, err := h.signIn.SendLoginCode(ctx, req.Email)
	if err != nil {
		h.logger.WarnContext(ctx, "sending login code failed", "error", err)
		return mapDomainError(err)
	}

	return c.JSON(http.StatusAccepted, sendCodeResponse{FlowID: flowID})
}

// VerifyCode completes a one-time-code login.
func (h *AuthHandler) VerifyCode(c echo.Context) error {
	var req verifyCodeRequest
	if err := c.Bind(&req); err != nil || req.FlowID == "" || req.Email == "" || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "flow_id, email and code are required")
	}

	ctx := logger.WithOperation(c.Request().Context(), "login_code_verify")
	session, err := h.signIn.SignInWithCode(ctx, req.FlowID, req.Email, req.Code)
	if err != nil {
		h.logger.WarnContext(ctx, "code login failed", "error", err)
		return mapDomainError(err)
	}
	h.logger.InfoContext(logger.WithUserID(ctx, userIDOf(session)), "signed in")

	return c.JSON(http.StatusOK, newStateResponse(h.state.State()))
}

// OAuth redirects the browser to the identity provider's consent page.
func (h *AuthHandler) OAuth(c echo.Context) error {
	provider := c.Param("provider")
	if provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}

	ctx := logger.WithOperation(c.Request().Context(), "login_oauth")
	redirect, err := h.signIn.SignInWithOAuth(ctx, provider, c.QueryParam("return_to"))
	if err != nil {
		h.logger.WarnContext(ctx, "oauth login failed", "provider", provider, "error", err)
		return mapDomainError(err)
	}

	return c.Redirect(http.StatusSeeOther, redirect)
}

// Logout signs out. Provider errors are logged; the local session is gone
// either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := logger.WithOperation(c.Request().Context(), "logout")
	if err := h.sessions.SignOut(ctx); err != nil {
		h.logger.WarnContext(ctx, "sign out failed", "error", err)
	}
	return c.JSON(http.StatusOK, newStateResponse(h.state.State()))
}

// RefreshUser refetches the profile.
func (h *AuthHandler) RefreshUser(c echo.Context) error {
	ctx := logger.WithOperation(c.Request().Context(), "refresh_user")
	if err := h.state.RefreshUser(ctx); err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newStateResponse(h.state.State()))
}

func userIDOf(s *domain.Session) string {
	if s == nil || s.Identity == nil {
		return ""
	}
	return s.Identity.UserID
}
