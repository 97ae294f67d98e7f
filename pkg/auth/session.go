package auth

import "github.com/oxidb/oxidb/pkg/oxierr"

// Session holds one connection's authentication state: unauthenticated
// until a full SCRAM handshake completes, at which point it carries the
// authenticated user's role for the lifetime of the connection.
type Session struct {
	store *Store

	authenticated bool
	user          string
	role          Role

	pending     *ServerState
	pendingRole Role
	pendingOK   bool
}

// NewSession returns a fresh, unauthenticated session bound to store.
func NewSession(store *Store) *Session {
	return &Session{store: store}
}

// Authenticated reports whether the handshake has completed successfully.
func (s *Session) Authenticated() bool { return s.authenticated }

// Role returns the session's role; only meaningful once Authenticated.
func (s *Session) Role() Role { return s.role }

// User returns the authenticated username; only meaningful once Authenticated.
func (s *Session) User() string { return s.user }

// Reset clears in-progress handshake state. Any command other than
// auth_start/auth_continue received between the two resets any pending
// SCRAM state (spec.md §9 "SCRAM state").
func (s *Session) Reset() {
	s.pending = nil
}

// AuthStart processes auth_start{user, client_first}, returning the
// {salt, iterations, combined_nonce} reply fields.
func (s *Session) AuthStart(user, clientFirst string) (salt string, iterations int, combinedNonce string, err error) {
	cred, role, ok, err := s.store.Lookup(user)
	if err != nil {
		return "", 0, "", err
	}
	if !ok {
		// Unknown user: run the handshake against a dummy credential so
		// the reply has the same shape as for a known user, then always
		// fail at auth_continue. The dummy is derived with a fresh random
		// salt on every attempt, and that PBKDF2 derivation is work a
		// known user's auth_start does not do, so the salt's stability
		// across attempts and the response time are not masked.
		cred, _ = NewCredential(dummyPassword(user))
		role = RoleRead
	}
	st, salt, iterations, combined, err := ServerFirst(user, clientFirst, cred)
	if err != nil {
		return "", 0, "", err
	}
	st.Credential = cred
	s.pending = st
	s.pendingRole = role
	s.pendingOK = ok
	return salt, iterations, combined, nil
}

// AuthContinue processes auth_continue{client_final, client_proof},
// completing the handshake on success.
func (s *Session) AuthContinue(clientFinal, clientProof string) (serverSignature string, err error) {
	if s.pending == nil {
		return "", oxierr.New(oxierr.AuthFailed, "no authentication in progress")
	}
	st := s.pending
	s.pending = nil

	sig, err := VerifyClientFinal(st, clientFinal, clientProof)
	if err != nil {
		return "", err
	}
	if !s.pendingOK {
		return "", oxierr.New(oxierr.AuthFailed, "authentication failed")
	}
	s.authenticated = true
	s.user = st.User
	s.role = s.pendingRole
	return sig, nil
}

// Authorize checks cmd against the session's auth state: unauthenticated
// sessions may only run pre-auth commands; authenticated sessions are
// checked against the RBAC matrix for their role.
func (s *Session) Authorize(cmd string) error {
	if !s.authenticated {
		if IsPreAuth(cmd) {
			return nil
		}
		return oxierr.New(oxierr.Unauthenticated, "authentication required for %q", cmd)
	}
	if !IsPermitted(s.role, cmd) {
		return oxierr.New(oxierr.Forbidden, "role %q is not permitted to run %q", s.role, cmd)
	}
	return nil
}

func dummyPassword(seed string) string { return "oxidb-dummy:" + seed }
