package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"promptflows/backend/internal/config"
	"promptflows/backend/pkg/models"
)

const (
	// DevActorID is the actor used when authentication is bypassed.
	DevActorID = "dev-actor"
	// DevActorHeader selects another actor id in bypass mode.
	DevActorHeader = "X-Dev-Actor"
)

// ProfileProvisioner resolves, or creates on first sight, the profile of an
// authenticated subject.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, actorID, preferred, displayName string) (*models.Profile, error)
}

type claims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Scp               []string `json:"scp"`
	Scope             string   `json:"scope"`

	bearer bool
}

// granted reports whether the token carries scope. projects:write implies
// projects:read.
func (c claims) granted(scope string) bool {
	for _, s := range append(c.Scp, strings.Fields(c.Scope)...) {
		if s == scope || (scope == ScopeProjectsRead && s == ScopeProjectsWrite) {
			return true
		}
	}
	return false
}

// requiredScope is the access token scope a request method needs.
func requiredScope(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeProjectsRead
	default:
		return ScopeProjectsWrite
	}
}

// handle picks the preferred public username for the subject.
func (c claims) handle() string {
	if c.PreferredUsername != "" {
		local, _, _ := strings.Cut(c.PreferredUsername, "@")
		return local
	}
	if local, _, ok := strings.Cut(c.Email, "@"); ok {
		return local
	}
	return c.Subject
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth performs OpenID Connect authentication against an Okta tenant and
// maps token subjects to actors.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	profiles     ProfileProvisioner
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares an
// ID token verifier.
func New(ctx context.Context, cfg *config.Config, profiles ProfileProvisioner, logger Logger) (*Auth, error) {
	isDev := cfg.IsDev()
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier
	var apiVerifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       LoginScopes,
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

		// Create a separate verifier for Access Tokens (Bearer).
		// We skip ClientID check because Access Tokens often have a different audience (e.g. "api://default")
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		apiVerifier:  apiVerifier,
		profiles:     profiles,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

const (
	stateCookie   = "oauthstate"
	sessionCookie = "id_token"
)

// setCookie writes an HttpOnly cookie scoped to the whole site. maxAge < 0
// deletes it.
func (a *Auth) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !a.devMode,
		SameSite: http.SameSiteLaxMode,
	})
}

// deny writes an RFC 7807 problem body, matching the REST error format.
func deny(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// LoginHandler starts the authorization code flow. The CSRF state travels
// in a short-lived cookie and is checked by CallbackHandler.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		deny(w, http.StatusInternalServerError, "failed to generate state")
		return
	}
	a.setCookie(w, stateCookie, state, 600)
	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler completes the login: it checks state, exchanges the code,
// verifies the ID token, provisions the caller's profile and stores the raw
// ID token as the session cookie.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	query := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || query.Get("state") != cookie.Value {
		deny(w, http.StatusBadRequest, "invalid state")
		return
	}
	a.setCookie(w, stateCookie, "", -1)

	token, err := a.oauth2Config.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		if a.logger != nil {
			a.logger.Error("token exchange failed", "error", err)
		}
		deny(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		deny(w, http.StatusBadGateway, "no id_token in token response")
		return
	}
	idToken, err := a.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		deny(w, http.StatusUnauthorized, "failed to verify id token")
		return
	}

	c, err := claimsOf(idToken)
	if err != nil {
		deny(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := a.provision(r.Context(), c); err != nil {
		deny(w, http.StatusInternalServerError, "failed to provision profile")
		return
	}

	a.setCookie(w, sessionCookie, rawIDToken, 0)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// claimsOf decodes the claims of a verified token.
func claimsOf(token *oidc.IDToken) (claims, error) {
	var c claims
	if err := token.Claims(&c); err != nil {
		return claims{}, errors.New("failed to parse token claims")
	}
	if c.Subject == "" {
		c.Subject = token.Subject
	}
	if c.Subject == "" {
		return claims{}, errors.New("token has no subject")
	}
	return c, nil
}

// provision resolves the caller's profile, creating it on first sight.
func (a *Auth) provision(ctx context.Context, c claims) (Actor, error) {
	profile, err := a.profiles.EnsureProfile(ctx, c.Subject, c.handle(), c.Name)
	if err != nil && a.logger != nil {
		a.logger.Error("failed to provision profile", "actor_id", c.Subject, "error", err)
	}
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: profile.ID, Handle: profile.Username}, nil
}

// authenticate resolves the caller's claims. Bearer tokens (API clients,
// Swagger UI) take precedence over the session cookie. In bypass mode every
// request is the dev actor unless DevActorHeader names another.
func (a *Auth) authenticate(r *http.Request) (claims, error) {
	if a.authBypass {
		if id := r.Header.Get(DevActorHeader); id != "" {
			return claims{Subject: id, PreferredUsername: id}, nil
		}
		return claims{Subject: DevActorID, PreferredUsername: "dev", Name: "Local Developer"}, nil
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token, err := a.apiVerifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return claims{}, fmt.Errorf("invalid token: %w", err)
		}
		c, err := claimsOf(token)
		c.bearer = true
		return c, err
	}

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return claims{}, errors.New("authentication required")
	}
	token, err := a.verifier.Verify(r.Context(), cookie.Value)
	if err != nil {
		return claims{}, fmt.Errorf("invalid token: %w", err)
	}
	return claimsOf(token)
}

// RequireAuth is middleware that resolves the caller, provisions a profile
// on first sight, and stores the Actor in the request context. Bearer
// access tokens need projects:read for safe methods and projects:write for
// everything else; session cookies carry no scopes and are not checked.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := a.authenticate(r)
		if err != nil {
			deny(w, http.StatusUnauthorized, err.Error())
			return
		}
		if scope := requiredScope(r.Method); c.bearer && !c.granted(scope) {
			deny(w, http.StatusForbidden, "token lacks scope "+scope)
			return
		}
		actor, err := a.provision(r.Context(), c)
		if err != nil {
			deny(w, http.StatusInternalServerError, "failed to provision profile")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.setCookie(w, sessionCookie, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
