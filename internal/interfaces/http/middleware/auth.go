package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

type contextKey string

const principalKey contextKey = "auth_principal"

// Authentication methods recorded on a Principal.
const (
	MethodAPIKey = "api_key"
	MethodJWT    = "jwt"
)

// Principal identifies the caller of an authenticated request.
type Principal struct {
	Subject string
	Method  string
}

// PrincipalFromContext returns the caller set by Authenticator.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	APIKeys   []string
	JWTSecret string
	JWTIssuer string
	SkipPaths []string
}

// DefaultAuthConfig leaves the health checks and the metrics endpoint open.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{SkipPaths: []string{"/healthz", "/healthz/detail", "/readyz", "/metrics"}}
}

var (
	errMissingToken = stderrors.New("missing bearer token")
	errBadScheme    = stderrors.New("authorization scheme must be Bearer")
	errUnknownKey   = stderrors.New("unknown api key")
)

// Authenticator checks the Authorization bearer token, or the X-API-Key
// header when no Authorization header is sent, against static API keys and
// HS256-signed JWTs.
type Authenticator struct {
	keys   [][]byte
	secret []byte
	parser *jwt.Parser
	skip   map[string]struct{}
	logger logging.Logger
}

// NewAuthenticator builds an Authenticator. JWTs are rejected when
// cfg.JWTSecret is empty.
func NewAuthenticator(cfg AuthConfig, logger logging.Logger) *Authenticator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &Authenticator{
		skip:   make(map[string]struct{}, len(cfg.SkipPaths)),
		logger: logger,
	}
	for _, k := range cfg.APIKeys {
		if k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	for _, p := range cfg.SkipPaths {
		a.skip[p] = struct{}{}
	}
	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		}
		if cfg.JWTIssuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
		}
		a.parser = jwt.NewParser(opts...)
	}
	return a
}

// Authenticate resolves a bearer token to a Principal.
func (a *Authenticator) Authenticate(token string) (Principal, error) {
	for i, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(token), k) == 1 {
			return Principal{Subject: "api-key-" + strconv.Itoa(i), Method: MethodAPIKey}, nil
		}
	}
	if a.parser == nil || strings.Count(token, ".") != 2 {
		return Principal{}, errUnknownKey
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return Principal{}, err
	}
	return Principal{Subject: claims.Subject, Method: MethodJWT}, nil
}

// Handler rejects unauthenticated requests with 401 and stores the
// Principal in the request context.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.skip[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token, err := credential(r)
		if err == nil {
			var p Principal
			if p, err = a.Authenticate(token); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
				return
			}
		}

		a.logger.Warn("authentication failed",
			logging.String("path", r.URL.Path),
			logging.String("remote_addr", r.RemoteAddr),
			logging.Err(err),
		)
		writeUnauthorized(w, err)
	})
}

func credential(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
			return key, nil
		}
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadScheme
	}
	return strings.TrimSpace(token), nil
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	detail := "invalid credentials"
	switch {
	case stderrors.Is(err, errMissingToken), stderrors.Is(err, errBadScheme):
		detail = err.Error()
	case stderrors.Is(err, jwt.ErrTokenExpired):
		detail = "token expired"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    errors.ErrCodeUnauthorized.String(),
		"message": errors.DefaultMessageForCode(errors.ErrCodeUnauthorized),
		"detail":  detail,
	})
}
