package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mentorlink/pkg/types"
)

var (
	ErrMissingToken  = errors.New("missing access token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Verifier validates HS256 access tokens issued by the REST layer and turns
// them into connection identities.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses tokenStr and returns the identity it carries.
func (v *Verifier) Verify(tokenStr string) (types.Identity, error) {
	if tokenStr == "" {
		return types.Identity{}, ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Identity{}, ErrTokenExpired
		}
		return types.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return types.Identity{}, ErrInvalidClaims
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	firstName, _ := claims["first_name"].(string)

	if !types.IsValidID(userID) || !types.IsValidRole(role) {
		return types.Identity{}, ErrInvalidClaims
	}

	return types.Identity{UserID: userID, Role: role, FirstName: firstName}, nil
}

// Authenticate reads the token from the token query parameter or a Bearer
// Authorization header.
func (v *Verifier) Authenticate(r *http.Request) (types.Identity, error) {
	return v.Verify(TokenFromRequest(r))
}

func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Issue signs a token for identity. The REST layer owns issuance in
// production; this is used by tooling and tests.
func (v *Verifier) Issue(identity types.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": identity.UserID,
		"role":    identity.Role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if identity.FirstName != "" {
		claims["first_name"] = identity.FirstName
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
