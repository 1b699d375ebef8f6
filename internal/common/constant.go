package common

const (
	// AuthorizationHeaderName carries the bearer access token on protected routes.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the access token in the Authorization header.
	BearerPrefix = "Bearer "

	// AnonymousTenant is the tenant identity used when a request carries no
	// authenticated organization.
	AnonymousTenant = "anonymous"
)
