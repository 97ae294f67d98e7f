package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

const (
	defaultIterations = 100_000
	nonceBytes        = 18
)

// Credential is a user's persisted SCRAM-SHA-256 credential: never the
// plaintext or even the salted password, only the two derived keys
// needed to verify a proof and sign a response (spec.md §4.7).
type Credential struct {
	Salt       []byte
	Iterations int
	StoredKey  []byte // SHA-256(ClientKey)
	ServerKey  []byte // HMAC-SHA256(SaltedPassword, "Server Key")
}

// NewCredential derives a Credential from a plaintext password, generating
// a fresh random salt. This is the only place a plaintext password is
// ever handled; it is never stored.
func NewCredential(password string) (Credential, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, oxierr.Wrap(oxierr.Internal, err, "generate salt")
	}
	salted := pbkdf2.Key([]byte(password), salt, defaultIterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(salted, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	serverKey := hmacSHA256(salted, []byte("Server Key"))
	return Credential{
		Salt:       salt,
		Iterations: defaultIterations,
		StoredKey:  storedKey[:],
		ServerKey:  serverKey,
	}, nil
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// ServerState is the per-session SCRAM intermediate state that exists
// only between auth_start and auth_continue; any other command in
// between resets it (spec.md §9 "SCRAM state").
type ServerState struct {
	User          string
	ClientFirst   string
	ServerNonce   string
	CombinedNonce string
	Credential    Credential
	authMessage   string
}

// ServerFirst begins the handshake: given the stored credential for user
// and the client's opening message, returns the state to hold on the
// session plus the {salt, iterations, combined_nonce} to send back.
func ServerFirst(user, clientFirst string, cred Credential) (*ServerState, string, int, string, error) {
	serverNonceBytes := make([]byte, nonceBytes)
	if _, err := rand.Read(serverNonceBytes); err != nil {
		return nil, "", 0, "", oxierr.Wrap(oxierr.Internal, err, "generate server nonce")
	}
	serverNonce := base64.StdEncoding.EncodeToString(serverNonceBytes)
	combined := clientFirst + serverNonce

	st := &ServerState{
		User:          user,
		ClientFirst:   clientFirst,
		ServerNonce:   serverNonce,
		CombinedNonce: combined,
		Credential:    cred,
	}
	salt := base64.StdEncoding.EncodeToString(cred.Salt)
	st.authMessage = fmt.Sprintf("%s,%s:%d:%s", clientFirst, salt, cred.Iterations, combined)
	return st, salt, cred.Iterations, combined, nil
}

// VerifyClientFinal validates the client's proof against st and, on
// success, returns the server signature to send back. On any mismatch
// the returned error is classified oxierr.AuthFailed and the session
// must remain unauthenticated (spec.md §4.7).
func VerifyClientFinal(st *ServerState, clientFinal, clientProofB64 string) (string, error) {
	if clientFinal != st.CombinedNonce {
		return "", oxierr.New(oxierr.AuthFailed, "nonce mismatch")
	}
	clientProof, err := base64.StdEncoding.DecodeString(clientProofB64)
	if err != nil || len(clientProof) != sha256.Size {
		return "", oxierr.New(oxierr.AuthFailed, "malformed client proof")
	}

	authMessage := st.authMessage + "," + clientFinal
	clientSignature := hmacSHA256(st.Credential.StoredKey, []byte(authMessage))
	clientKey := xorBytes(clientProof, clientSignature)
	computedStoredKey := sha256.Sum256(clientKey)

	if subtle.ConstantTimeCompare(computedStoredKey[:], st.Credential.StoredKey) != 1 {
		return "", oxierr.New(oxierr.AuthFailed, "proof verification failed")
	}

	serverSignature := hmacSHA256(st.Credential.ServerKey, []byte(authMessage))
	return base64.StdEncoding.EncodeToString(serverSignature), nil
}
