package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrBadToken     = errors.New("bad auth header")
)

// Verifier checks signed session tokens and returns the actor they name.
type Verifier struct {
	parser   *jwt.Parser
	key      jwt.Keyfunc
	jwks     *keyfunc.JWKS
	audience string
	issuer   string
	now      func() time.Time
}

// NewHS256 verifies tokens signed with a shared secret.
func NewHS256(secret []byte, audience, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	return &Verifier{
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
		key: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		},
		audience: audience,
		issuer:   issuer,
		now:      time.Now,
	}, nil
}

// NewJWKS verifies RS256 tokens against the keys published at url. The key
// set is refreshed in the background until Close.
func NewJWKS(url, audience, issuer string) (*Verifier, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return newKeyfuncVerifier(jwks, audience, issuer), nil
}

func newKeyfuncVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	return &Verifier{
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()),
		key:      jwks.Keyfunc,
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		now:      time.Now,
	}
}

// Close stops the JWKS refresh goroutine, if any.
func (v *Verifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Actor verifies token and returns its subject, falling back to the name
// claim.
func (v *Verifier) Actor(token string) (string, error) {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return "", ErrMissingToken
	}
	parsed, err := v.parser.Parse(token, v.key)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	// one minute of clock skew
	now := v.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, false) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return "", errors.New("invalid audience")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", errors.New("invalid issuer")
	}
	return actorOf(claims)
}

// ActorFromHeader reads a "Bearer <jwt>" Authorization value.
func (v *Verifier) ActorFromHeader(h string) (string, error) {
	token, err := BearerToken(h)
	if err != nil {
		return "", err
	}
	return v.Actor(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrBadToken
	}
	token := strings.TrimSpace(parts[1])
	if strings.Count(token, ".") != 2 {
		return "", ErrBadToken
	}
	return token, nil
}

// Claims is what whoami shows about a saved token.
type Claims struct {
	Actor     string
	Issuer    string
	ExpiresAt *time.Time
}

// Inspect decodes token without checking its signature.
func Inspect(token string) (Claims, error) {
	var c Claims
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(stripBearer(token), mc); err != nil {
		return c, err
	}
	c.Actor, _ = actorOf(mc)
	c.Issuer, _ = mc["iss"].(string)
	if exp, ok := mc["exp"].(float64); ok {
		t := time.Unix(int64(exp), 0).UTC()
		c.ExpiresAt = &t
	}
	return c, nil
}

func actorOf(claims jwt.MapClaims) (string, error) {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		return name, nil
	}
	return "", errors.New("missing sub")
}
