package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"gym-session/internal/domain"
	"gym-session/internal/infrastructure/events"
	"gym-session/internal/infrastructure/token"

	kratos "github.com/ory/kratos-client-go"
)

// KratosGateway implements domain.SessionProvider and domain.SignInInitiator on
// top of Ory Kratos native (API) flows. The current session lives in store.
type KratosGateway struct {
	client       *kratos.APIClient
	adminBaseURL string
	httpClient   *http.Client
	store        domain.SessionStore
	events       *events.Broker[domain.AuthEvent]
	tokenizeAs   string
	logger       *slog.Logger
	now          func() time.Time
}

// KratosOptions configures a KratosGateway.
type KratosOptions struct {
	BaseURL      string
	AdminBaseURL string
	// TokenizeAs names a Kratos tokenizer template; when set the backend
	// bearer is the tokenized JWT instead of the session token.
	TokenizeAs string
	Timeout    time.Duration
	Store      domain.SessionStore
	Logger     *slog.Logger
}

// NewKratosGateway creates a new Kratos gateway with tuned HTTP transport.
func NewKratosGateway(opts KratosOptions) *KratosGateway {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: opts.BaseURL},
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
	configuration.HTTPClient = httpClient

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &KratosGateway{
		client:       kratos.NewAPIClient(configuration),
		adminBaseURL: opts.AdminBaseURL,
		httpClient:   httpClient,
		store:        opts.Store,
		events:       events.NewBroker[domain.AuthEvent](),
		tokenizeAs:   opts.TokenizeAs,
		logger:       logger,
		now:          time.Now,
	}
}

// GetSession returns the stored session without contacting Kratos. An expired
// or missing session yields (nil, nil).
func (g *KratosGateway) GetSession(ctx context.Context) (*domain.Session, error) {
	stored, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Expired(g.now()) {
		return nil, nil
	}
	return stored.ToSession(), nil
}

// RefreshSession re-reads the session from Kratos (extending it first when the
// admin API is configured), stores it and emits TOKEN_REFRESHED.
func (g *KratosGateway) RefreshSession(ctx context.Context) (*domain.Session, error) {
	stored, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.SessionToken == "" {
		return nil, domain.ErrSessionNotFound
	}

	if g.adminBaseURL != "" {
		if err := g.ExtendSession(ctx, stored.SessionID); err != nil {
			g.logger.WarnContext(ctx, "session extension failed, continuing with whoami",
				"session_id", stored.SessionID,
				"error", err)
		}
	}

	session, err := g.whoami(ctx, stored.SessionToken)
	if err != nil {
		return nil, err
	}

	refreshed, err := g.toStored(session, stored.SessionToken)
	if err != nil {
		return nil, err
	}
	if err := g.store.Save(ctx, refreshed); err != nil {
		return nil, err
	}

	result := refreshed.ToSession()
	g.events.Publish(domain.AuthEvent{Kind: domain.EventTokenRefreshed, Session: result})
	return result, nil
}

// SignOut revokes the session at Kratos and forgets it locally. The local
// session is removed and SIGNED_OUT emitted even when revocation fails.
func (g *KratosGateway) SignOut(ctx context.Context) error {
	stored, err := g.store.Load(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "failed to load session for sign-out", "error", err)
	}

	var revokeErr error
	if stored != nil && stored.SessionToken != "" {
		body := kratos.NewPerformNativeLogoutBody(stored.SessionToken)
		resp, err := g.client.FrontendAPI.PerformNativeLogout(ctx).PerformNativeLogoutBody(*body).Execute()
		if err != nil && !(resp != nil && resp.StatusCode == http.StatusUnauthorized) {
			revokeErr = mapKratosError(resp, err)
		}
	}

	if err := g.store.Delete(ctx); err != nil {
		revokeErr = errors.Join(revokeErr, err)
	}

	g.events.Publish(domain.AuthEvent{Kind: domain.EventSignedOut})
	return revokeErr
}

// OnAuthStateChange registers fn for auth events.
func (g *KratosGateway) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	return g.events.Subscribe(fn)
}

// SignInWithPassword completes a native login flow with the password method.
func (g *KratosGateway) SignInWithPassword(ctx context.Context, identifier, password string) (*domain.Session, error) {
	flowID, err := g.createLoginFlow(ctx, "")
	if err != nil {
		return nil, err
	}

	body := kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: identifier,
		Password:   password,
	})

	login, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).Flow(flowID).UpdateLoginFlowBody(body).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			return nil, domain.ErrAuthFailed
		}
		return nil, mapKratosError(resp, err)
	}
	return g.establish(ctx, login)
}

// SendLoginCode starts a login flow and asks Kratos to email a one-time code.
// The returned flow ID is passed to SignInWithCode.
func (g *KratosGateway) SendLoginCode(ctx context.Context, email string) (string, error) {
	flowID, err := g.createLoginFlow(ctx, "")
	if err != nil {
		return "", err
	}

	body := kratos.UpdateLoginFlowWithCodeMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithCodeMethod{
		Method:     "code",
		Identifier: kratos.PtrString(email),
	})

	_, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).Flow(flowID).UpdateLoginFlowBody(body).Execute()
	// Kratos answers the first code step with 400 and the flow, now waiting
	// for the code.
	if resp != nil && resp.StatusCode == http.StatusBadRequest {
		return flowID, nil
	}
	if err != nil {
		return "", mapKratosError(resp, err)
	}
	return flowID, nil
}

// SignInWithCode completes a code login flow.
func (g *KratosGateway) SignInWithCode(ctx context.Context, flowID, email, code string) (*domain.Session, error) {
	body := kratos.UpdateLoginFlowWithCodeMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithCodeMethod{
		Method:     "code",
		Identifier: kratos.PtrString(email),
		Code:       kratos.PtrString(code),
	})

	login, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).Flow(flowID).UpdateLoginFlowBody(body).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusGone) {
			return nil, domain.ErrInvalidCode
		}
		return nil, mapKratosError(resp, err)
	}
	return g.establish(ctx, login)
}

// SignInWithOAuth starts an OIDC login and returns the provider URL the user
// must open in a browser.
func (g *KratosGateway) SignInWithOAuth(ctx context.Context, provider, returnTo string) (string, error) {
	flowID, err := g.createLoginFlow(ctx, returnTo)
	if err != nil {
		return "", err
	}

	body := kratos.UpdateLoginFlowWithOidcMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithOidcMethod{
		Method:   "oidc",
		Provider: provider,
	})

	_, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).Flow(flowID).UpdateLoginFlowBody(body).Execute()
	if err == nil {
		return "", domain.ErrOAuthRedirect
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return "", mapKratosError(resp, err)
	}

	var apiErr *kratos.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return "", domain.ErrOAuthRedirect
	}
	var browser struct {
		RedirectBrowserTo string `json:"redirect_browser_to"`
	}
	if err := json.Unmarshal(apiErr.Body(), &browser); err != nil || browser.RedirectBrowserTo == "" {
		return "", domain.ErrOAuthRedirect
	}
	return browser.RedirectBrowserTo, nil
}

// ExtendSession pushes the session expiry forward through the admin API.
func (g *KratosGateway) ExtendSession(ctx context.Context, sessionID string) error {
	if g.adminBaseURL == "" {
		return domain.ErrAdminNotConfigured
	}

	endpoint := fmt.Sprintf("%s/admin/sessions/%s/extend", g.adminBaseURL, url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrKratosUnavailable, err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrKratosUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrSessionNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: admin API returned status %d", domain.ErrKratosUnavailable, resp.StatusCode)
	}
	return nil
}

func (g *KratosGateway) createLoginFlow(ctx context.Context, returnTo string) (string, error) {
	req := g.client.FrontendAPI.CreateNativeLoginFlow(ctx)
	if returnTo != "" {
		req = req.ReturnTo(returnTo)
	}

	flow, resp, err := req.Execute()
	if err != nil {
		return "", mapKratosError(resp, err)
	}
	return flow.Id, nil
}

// establish stores a freshly issued session and emits SIGNED_IN.
func (g *KratosGateway) establish(ctx context.Context, login *kratos.SuccessfulNativeLogin) (*domain.Session, error) {
	if login.SessionToken == nil || *login.SessionToken == "" {
		return nil, fmt.Errorf("%w: login returned no session token", domain.ErrAuthFailed)
	}
	sessionToken := *login.SessionToken

	session := &login.Session
	if g.tokenizeAs != "" {
		// The login response is never tokenized; whoami is.
		tokenized, err := g.whoami(ctx, sessionToken)
		if err != nil {
			return nil, err
		}
		session = tokenized
	}

	stored, err := g.toStored(session, sessionToken)
	if err != nil {
		return nil, err
	}
	if err := g.store.Save(ctx, stored); err != nil {
		return nil, err
	}

	result := stored.ToSession()
	g.logger.InfoContext(ctx, "signed in",
		"user_id", stored.UserID,
		"session_id", stored.SessionID)
	g.events.Publish(domain.AuthEvent{Kind: domain.EventSignedIn, Session: result})
	return result, nil
}

func (g *KratosGateway) whoami(ctx context.Context, sessionToken string) (*kratos.Session, error) {
	req := g.client.FrontendAPI.ToSession(ctx).XSessionToken(sessionToken)
	if g.tokenizeAs != "" {
		req = req.TokenizeAs(g.tokenizeAs)
	}

	session, resp, err := req.Execute()
	if err != nil {
		return nil, mapKratosError(resp, err)
	}
	return session, nil
}

// toStored converts a Kratos session into the stored form. The backend bearer
// is the tokenized JWT when available, otherwise the session token.
func (g *KratosGateway) toStored(session *kratos.Session, sessionToken string) (*domain.StoredSession, error) {
	if session.Active != nil && !*session.Active {
		return nil, domain.ErrSessionInactive
	}

	if session.Identity == nil {
		return nil, domain.ErrMissingIdentity
	}

	email := ""
	if traits, ok := session.Identity.Traits.(map[string]interface{}); ok {
		if emailVal, ok := traits["email"]; ok {
			if emailStr, ok := emailVal.(string); ok {
				email = emailStr
			}
		}
	}

	var createdAt time.Time
	if session.Identity.CreatedAt != nil {
		createdAt = *session.Identity.CreatedAt
	}

	var expiresAt int64
	if session.ExpiresAt != nil {
		expiresAt = session.ExpiresAt.Unix()
	}

	accessToken := sessionToken
	if g.tokenizeAs != "" && session.Tokenized != nil && *session.Tokenized != "" {
		accessToken = *session.Tokenized
		if exp, err := token.ExpiryFromJWT(accessToken); err != nil {
			g.logger.Warn("tokenized session has unreadable expiry", "error", err)
		} else if exp > 0 {
			expiresAt = exp
		}
	}

	return &domain.StoredSession{
		SessionID:    session.Id,
		SessionToken: sessionToken,
		AccessToken:  accessToken,
		ExpiresAt:    expiresAt,
		UserID:       session.Identity.Id,
		Email:        email,
		CreatedAt:    createdAt,
	}, nil
}

func mapKratosError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.ErrAuthFailed
		case http.StatusNotFound, http.StatusGone:
			return domain.ErrSessionExpired
		}
		return fmt.Errorf("%w: kratos returned status %d", domain.ErrKratosUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("%w: %w", domain.ErrKratosUnavailable, err)
}
