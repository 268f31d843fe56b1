package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/services"
	"qbeAdmin/internal/utils"
)

// AuthSessionName is the gorilla session holding the signed-in user.
const AuthSessionName = "auth-session"

const defaultLoginRedirect = "/admin/"

// UserInfoFunc fetches the email and display name of the account behind token.
type UserInfoFunc func(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (email, name string, err error)

// GoogleUserInfo reads the signed-in account from the Google userinfo API.
func GoogleUserInfo(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (string, string, error) {
	service, err := oauth2api.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, token)))
	if err != nil {
		return "", "", err
	}
	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	return info.Email, info.Name, nil
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	sessions    sessions.Store
	pending     sessions.Store
	oauth       *oauth2.Config
	authService *services.AuthService
	userInfo    UserInfoFunc
	maxAge      int
	secure      bool
}

// NewAuthHandlers creates new authentication handlers. pending is the store
// of the qbe session, cleared on logout.
func NewAuthHandlers(store, pending sessions.Store, oauth *oauth2.Config, authService *services.AuthService, userInfo UserInfoFunc, maxAge int, secure bool) *AuthHandlers {
	return &AuthHandlers{
		sessions:    store,
		pending:     pending,
		oauth:       oauth,
		authService: authService,
		userInfo:    userInfo,
		maxAge:      maxAge,
		secure:      secure,
	}
}

func (h *AuthHandlers) authSession(r *http.Request) (*sessions.Session, error) {
	session, err := h.sessions.Get(r, AuthSessionName)
	if err != nil {
		// A session that cannot be decoded is replaced rather than fatal.
		return h.sessions.New(r, AuthSessionName)
	}
	return session, nil
}

// HandleLogin starts the OAuth flow
func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	state, err := utils.GenerateSecureToken(16)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to generate OAuth state")
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	session, err := h.authSession(r)
	if session == nil {
		logger.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	for k := range session.Values {
		delete(session.Values, k)
	}
	session.Values["state"] = state
	session.Values["next"] = safeNext(r.URL.Query().Get("next"))
	session.Options = h.cookieOptions(h.maxAge)

	if err := session.Save(r, w); err != nil {
		logger.Error().Err(err).Msg("Failed to save session")
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	url := h.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleOAuthCallback finishes the OAuth flow and signs the user in
func (h *AuthHandlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	session, err := h.sessions.Get(r, AuthSessionName)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get session in callback")
		http.Error(w, "Session error - please try logging in again", http.StatusBadRequest)
		return
	}

	state, ok := session.Values["state"].(string)
	if !ok || state == "" || state != r.URL.Query().Get("state") {
		logger.Warn().Msg("OAuth state mismatch")
		http.Error(w, "Invalid state parameter - please try logging in again", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Code not found", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to exchange token")
		http.Error(w, "Failed to exchange token", http.StatusInternalServerError)
		return
	}

	email, name, err := h.userInfo(ctx, h.oauth, token)
	if err != nil || email == "" {
		logger.Error().Err(err).Msg("Failed to get user info")
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	user, err := h.authService.RecordLogin(ctx, email, name)
	if err != nil {
		logger.Error().Err(err).Str("email", email).Msg("Failed to record login")
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	csrfToken, err := utils.GenerateCSRFToken()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to generate CSRF token")
		http.Error(w, "Security token error", http.StatusInternalServerError)
		return
	}

	sessionDataJSON, err := json.Marshal(models.SessionData{
		UserEmail:     user.Email,
		Authenticated: true,
		CSRFToken:     csrfToken,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		http.Error(w, "Session processing error", http.StatusInternalServerError)
		return
	}

	next, _ := session.Values["next"].(string)
	delete(session.Values, "state")
	delete(session.Values, "next")
	session.Values["session_data"] = string(sessionDataJSON)
	if err := session.Save(r, w); err != nil {
		logger.Error().Err(err).Msg("Failed to save session")
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("email", user.Email).
		Bool("admin_access", user.CanAccessAdmin()).
		Msg("User signed in")
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

// HandleLogout clears the auth session and every pending query
func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	stores := map[string]sessions.Store{AuthSessionName: h.sessions, qbe.SessionName: h.pending}
	for _, name := range []string{AuthSessionName, qbe.SessionName} {
		session, err := stores[name].Get(r, name)
		if session == nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("session", name).Msg("Failed to get session during logout")
			continue
		}
		for k := range session.Values {
			delete(session.Values, k)
		}
		session.Options = h.cookieOptions(-1)
		_ = session.Save(r, w)
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// CurrentSession decodes the signed-in session data of r.
func (h *AuthHandlers) CurrentSession(r *http.Request) (*models.SessionData, error) {
	session, err := h.sessions.Get(r, AuthSessionName)
	if err != nil {
		return nil, services.ErrInvalidSession
	}

	raw, ok := session.Values["session_data"].(string)
	if !ok || raw == "" {
		return nil, services.ErrInvalidSession
	}

	var data models.SessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, services.ErrInvalidSession
	}
	return &data, nil
}

// CurrentUser resolves the signed-in user of r.
func (h *AuthHandlers) CurrentUser(r *http.Request) (*models.User, *models.SessionData, error) {
	data, err := h.CurrentSession(r)
	if err != nil {
		return nil, nil, err
	}
	user, err := h.authService.ResolveUser(r.Context(), data)
	if err != nil {
		return nil, nil, err
	}
	return user, data, nil
}

// IsSessionError reports whether err means the visitor is not signed in.
func IsSessionError(err error) bool {
	return errors.Is(err, services.ErrInvalidSession) ||
		errors.Is(err, services.ErrExpiredSession) ||
		errors.Is(err, services.ErrUnknownUser)
}

func (h *AuthHandlers) cookieOptions(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultLoginRedirect
	}
	return next
}
