package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"teamup/session"
)

const (
	ContextUserID  = "userId"
	ContextSession = "session"
)

var ErrSessionEnded = errors.New("session ended")

type Claims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Sessions is the part of the session store the middleware needs.
type Sessions interface {
	Get(id string) (*session.Session, bool)
}

// IssueToken signs an HS256 token bound to s. It expires with the session.
func IssueToken(secret []byte, s *session.Session) (string, error) {
	claims := Claims{
		UserID:    s.UserID,
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Authenticate validates a token and the session it is bound to.
func Authenticate(secret []byte, sessions Sessions, tokenString string) (*session.Session, error) {
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return nil, err
	}
	s, ok := sessions.Get(claims.SessionID)
	if !ok || s.UserID != claims.UserID {
		return nil, ErrSessionEnded
	}
	return s, nil
}

// TokenAuthenticator adapts Authenticate for connections that carry the
// token outside the Authorization header.
func TokenAuthenticator(secret []byte, sessions Sessions) func(string) (string, error) {
	return func(token string) (string, error) {
		s, err := Authenticate(secret, sessions, token)
		if err != nil {
			return "", err
		}
		return s.UserID, nil
	}
}

func JWTAuthMiddleware(secret []byte, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No authorization token provided")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Format should be: Bearer <token>")
			return
		}

		s, err := Authenticate(secret, sessions, parts[1])
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		c.Set(ContextUserID, s.UserID)
		c.Set(ContextSession, s)
		c.Next()
	}
}

// CurrentSession returns the session stored by JWTAuthMiddleware.
func CurrentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil || !s.IsAdmin {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
