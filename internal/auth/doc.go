// Package auth establishes the Identity of the acting user.
//
// # Identity Provider
//
// Users authenticate with HS256 JWTs signed with the configured jwt_secret:
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(auth.Identity{UserID: "u1", DisplayName: "Ana"}, 24*time.Hour)
//
// Claims:
//
//   - sub: user id (required)
//   - name: display name, copied into conversation participant snapshots
//   - admin: true for identities allowed on /api/admin
//
// # HTTP
//
// Middleware verifies the Authorization bearer token (or the access_token
// query parameter for EventSource clients) and stores the Identity in the
// request context. RequirePrivileged gates admin routes.
//
// # gRPC
//
// UnaryInterceptor and StreamInterceptor read the token from the
// "authorization" metadata key. Health checks are public.
//
// # Context
//
// Handlers and services read the identity with FromContext. Services compare
// it against caller-supplied ids, so a request can never act as someone else.
package auth
