package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	collab "github.com/sermonsmith/collab"
)

// Verifier turns a bearer credential into a Principal or rejects it.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for HMAC-signed tokens.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates a token, returning the authenticated
// principal. All failures wrap ErrAuthenticationFailed.
func (v *Verifier) Verify(tokenString string) (collab.Principal, error) {
	if tokenString == "" {
		return collab.Principal{}, fmt.Errorf("%w: no token provided", collab.ErrAuthenticationFailed)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return collab.Principal{}, fmt.Errorf("%w: %v", collab.ErrAuthenticationFailed, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return collab.Principal{}, fmt.Errorf("%w: invalid claims", collab.ErrAuthenticationFailed)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return collab.Principal{}, fmt.Errorf("%w: missing subject", collab.ErrAuthenticationFailed)
	}

	principal := collab.Principal{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		principal.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		principal.DisplayName = name
	}
	if role, ok := claims["role"].(string); ok {
		principal.Role = role
	}
	if principal.Role == "" {
		principal.Role = collab.RoleViewer
	}
	if principal.DisplayName == "" {
		principal.DisplayName = principal.Email
	}

	return principal, nil
}

// TokenFromRequest extracts the credential from the Authorization header or
// the token query parameter (browser websocket clients cannot set headers).
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
