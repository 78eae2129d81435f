package common

import "strings"

// AuthorizationHeaderName is the gRPC metadata / HTTP header key carrying
// the bearer access credential.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the credential in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// BearerToken extracts the credential from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively; anything else yields "".
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(BearerPrefix):])
}
