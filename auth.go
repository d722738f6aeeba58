package main

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator validates login credentials. The default in-memory
// implementation starts with no users and is filled through SetPassword; a
// real deployment would plug in its own (SPEC_FULL §3 domain-stack
// expansion — the teacher's WebTransport join handshake has no credential
// concept at all, so this component is new rather than adapted).
type Authenticator interface {
	// Authenticate reports whether email/password identify a known user.
	// It does not assign identity; the Login handler takes the ClientGuid
	// from the request's SenderGuid or generates a fresh one.
	Authenticate(email, password string) (ok bool)
}

// MemoryAuthenticator holds bcrypt-hashed passwords keyed by email.
type MemoryAuthenticator struct {
	mu    sync.RWMutex
	users map[string][]byte // email -> bcrypt hash
}

// NewMemoryAuthenticator returns an Authenticator with no registered users;
// any login will fail until users are added via SetPassword.
func NewMemoryAuthenticator() *MemoryAuthenticator {
	return &MemoryAuthenticator{users: make(map[string][]byte)}
}

// SetPassword hashes and stores password for email, replacing any existing
// credential.
func (a *MemoryAuthenticator) SetPassword(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.users[email] = hash
	a.mu.Unlock()
	return nil
}

// Authenticate implements Authenticator.
func (a *MemoryAuthenticator) Authenticate(email, password string) bool {
	a.mu.RLock()
	hash, ok := a.users[email]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// OpenAuthenticator accepts any email/password pair without checking
// either; identity still comes from the Login handler (SenderGuid or a fresh
// GUID), not from the email. Used when no credential store is
// configured — the wire protocol still requires a login handshake, but
// nothing blocks it.
type OpenAuthenticator struct{}

func (OpenAuthenticator) Authenticate(string, string) bool { return true }

var (
	_ Authenticator = (*MemoryAuthenticator)(nil)
	_ Authenticator = OpenAuthenticator{}
)
