package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

// ClientInfo is an authenticated caller and the identity it acts as.
type ClientInfo struct {
	Name     string
	Identity domain.Identity
}

// Authenticator resolves a bearer token to a caller.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// StaticTokenAuth checks bearer tokens against the configured list. Only
// SHA-256 digests are kept, so every comparison has the same length.
type StaticTokenAuth struct {
	digests [][sha256.Size]byte
	clients []ClientInfo
}

// NewStaticTokenAuth skips entries with an empty token.
func NewStaticTokenAuth(tokens []config.GatewayTokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(t.Token)))
		a.clients = append(a.clients, ClientInfo{Name: t.Name, Identity: domain.Identity(t.Identity)})
	}
	return a
}

// Authenticate scans every entry whatever matches, so timing does not reveal
// which token was presented.
func (a *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	got := sha256.Sum256([]byte(token))
	found := -1
	for i := range a.digests {
		if subtle.ConstantTimeCompare(got[:], a.digests[i][:]) == 1 && found < 0 {
			found = i
		}
	}
	if found < 0 {
		return nil, domain.ErrGatewayAuthFailed
	}
	client := a.clients[found]
	return &client, nil
}

// bearerToken returns the credential of an "Authorization: Bearer" header,
// or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
