// Package iam resolves request credentials into principals and mints
// delegated access tokens.
//
// Authentication is an ordered chain of Authenticators:
//
//	Request → Resolver → APIKeyAuthenticator → TokenAuthenticator → MTLSAuthenticator → Principal
//
// Each authenticator either resolves a Principal, reports that its credential
// is absent (the next one is tried), or rejects the credential it was given.
// A rejection ends the chain: a bad API key is never retried as a bearer
// token, and a bad bearer token is never retried as a client certificate.
//
// The Issuer is the other half: a service caller names a Discord account,
// the Issuer finds or provisions the matching principal and signs a short
// lived token for it. Tokens are not stored anywhere on the server.
package iam
