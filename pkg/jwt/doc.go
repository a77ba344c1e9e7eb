// Package jwt verifies HS256 access tokens issued by the identity provider
// and exposes the authenticated user to HTTP handlers.
//
// Tokens are parsed with github.com/golang-jwt/jwt/v5. Only HMAC-SHA256 is
// accepted; an expiration claim and a subject are mandatory. Issuer and
// audience are checked when configured.
//
//	v, err := jwt.NewVerifier(jwt.Config{Secret: os.Getenv("JWT_SECRET")})
//	if err != nil {
//		return err
//	}
//	r.Use(jwt.Middleware(v))
//
// Inside a handler the subject is available as the user id:
//
//	userID, ok := jwt.UserIDFromContext(r.Context())
package jwt
