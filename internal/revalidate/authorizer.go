package revalidate

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ScopeGlobal is reported when a request was authorized by the global
// secret rather than a journal-specific one.
const ScopeGlobal = "global"

// Request carries the fields relevant to authorization.
type Request struct {
	Journal  string
	Token    string
	ClientIP string
}

// Decision is a terminal authorization outcome.
type Decision struct {
	Authorized bool
	Status     int
	Scope      string
}

// Authorizer is one link of the chain. decided is false when the link
// has no opinion and the next link should run.
type Authorizer interface {
	Authorize(req Request) (decision Decision, decided bool)
}

// Chain evaluates authorizers in order; the first decided outcome
// wins. An empty or undecided chain rejects with 401.
type Chain []Authorizer

// Authorize runs the chain.
func (c Chain) Authorize(req Request) Decision {
	for _, a := range c {
		if decision, decided := a.Authorize(req); decided {
			return decision
		}
	}
	return Decision{Status: http.StatusUnauthorized}
}

// IPAllowlist rejects requests from outside the configured set before
// any token is inspected. An empty list is a no-op.
type IPAllowlist struct {
	ips map[string]struct{}
}

// NewIPAllowlist constructs the allow-list link.
func NewIPAllowlist(ips []string) *IPAllowlist {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return &IPAllowlist{ips: set}
}

func (a *IPAllowlist) Authorize(req Request) (Decision, bool) {
	if len(a.ips) == 0 {
		return Decision{}, false
	}
	if _, ok := a.ips[req.ClientIP]; !ok {
		return Decision{Status: http.StatusForbidden}, true
	}
	return Decision{}, false
}

// TokenPresence rejects requests carrying no token at all.
type TokenPresence struct{}

func (TokenPresence) Authorize(req Request) (Decision, bool) {
	if strings.TrimSpace(req.Token) == "" {
		return Decision{Status: http.StatusUnauthorized}, true
	}
	return Decision{}, false
}

// SecretSource resolves a journal's revalidation secret, "" when none
// is configured.
type SecretSource interface {
	Secret(journal string) string
}

// TenantSecret authorizes against the journal-specific secret when a
// journal was named. A mismatch is not terminal: the global secret
// still gets its turn.
type TenantSecret struct {
	secrets SecretSource
}

// NewTenantSecret constructs the tenant-secret link.
func NewTenantSecret(secrets SecretSource) *TenantSecret {
	return &TenantSecret{secrets: secrets}
}

func (a *TenantSecret) Authorize(req Request) (Decision, bool) {
	if a.secrets == nil || req.Journal == "" {
		return Decision{}, false
	}
	secret := a.secrets.Secret(req.Journal)
	if secret == "" {
		return Decision{}, false
	}
	if tokensEqual(req.Token, secret) {
		return Decision{Authorized: true, Status: http.StatusOK, Scope: req.Journal}, true
	}
	return Decision{}, false
}

// GlobalSecret is the chain's last resort: match authorizes with
// global scope, mismatch rejects.
type GlobalSecret struct {
	token string
}

// NewGlobalSecret constructs the global-secret link.
func NewGlobalSecret(token string) *GlobalSecret {
	return &GlobalSecret{token: token}
}

func (a *GlobalSecret) Authorize(req Request) (Decision, bool) {
	if a.token != "" && tokensEqual(req.Token, a.token) {
		return Decision{Authorized: true, Status: http.StatusOK, Scope: ScopeGlobal}, true
	}
	return Decision{Status: http.StatusUnauthorized}, true
}

// NewChain assembles the standard authorization order: IP allow-list,
// token presence, tenant secret, global secret.
func NewChain(allowedIPs []string, secrets SecretSource, globalToken string) Chain {
	return Chain{
		NewIPAllowlist(allowedIPs),
		TokenPresence{},
		NewTenantSecret(secrets),
		NewGlobalSecret(globalToken),
	}
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
