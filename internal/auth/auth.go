// Package auth issues and verifies the bearer tokens that carry an
// rbac.Principal between requests.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const issuer = "mindengage-exams"

type AuthService struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, now: time.Now}
}

type Claims struct {
	Role      rbac.Role `json:"role"`
	Institute string    `json:"institute,omitempty"`
	jwt.RegisteredClaims
}

// IssueJWT signs a token for p and returns it with its expiry.
func (a *AuthService) IssueJWT(p rbac.Principal) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		Role:      p.Role,
		Institute: p.InstituteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(a.hmac)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return s, exp, nil
}

// Parse verifies tokenStr and returns the principal it carries.
func (a *AuthService) Parse(tokenStr string) (rbac.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return rbac.Principal{}, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Subject == "" {
		return rbac.Principal{}, errors.New("invalid token claims")
	}
	if !c.Role.Valid() {
		return rbac.Principal{}, errors.Errorf("unknown role %q", c.Role)
	}
	return rbac.Principal{UserID: c.Subject, Role: c.Role, InstituteID: c.Institute}, nil
}

// JWTMiddleware rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				apperr.Write(w, apperr.Unauthenticated("missing bearer token"))
				return
			}
			p, err := a.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				apperr.Write(w, apperr.Unauthenticated("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), p)))
		})
	}
}

// Authenticator checks a user's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (exam.User, error)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        exam.User `json:"user"`
}

// LoginHandler serves POST /api/auth/login { "email": "...", "password": "..." }.
func LoginHandler(a *AuthService, users Authenticator, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.Write(w, apperr.Validation("malformed JSON body"))
			return
		}
		if req.Email == "" || req.Password == "" {
			apperr.Write(w, apperr.Validation("email and password are required"))
			return
		}
		u, err := users.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindServer {
				log.WithError(err).Error("authenticate")
			}
			apperr.Write(w, err)
			return
		}
		tok, exp, err := a.IssueJWT(u.Principal())
		if err != nil {
			log.WithError(err).Error("issue token")
			apperr.Write(w, apperr.Server(err))
			return
		}
		log.WithFields(logrus.Fields{"user": u.ID, "role": u.Role}).Info("login")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp, User: u})
	}
}
