package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/marlonreghert/tryvault-velocity/internal/auth/config"
)

type Auth interface {
	NewToken(subject string) (string, error)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderSubjectKey = "X-Velocity-Subject"
	bearerPrefix     = "Bearer "
	defaultTokenTTL  = 24 * time.Hour
)

var (
	ErrNoSecret     = errors.New("auth secret is not configured")
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type auth struct {
	secret []byte
	ttl    time.Duration
}

func NewAuth(cfg config.Config) Auth {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &auth{secret: []byte(cfg.Secret), ttl: ttl}
}

func (a *auth) NewToken(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	return token.SignedString(a.secret)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	// проверка отключена
	if len(a.secret) == 0 {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.getSubject(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем
		r.Header.Set(HeaderSubjectKey, subject)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getSubject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, bearerPrefix), claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return a.secret, nil
		})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
