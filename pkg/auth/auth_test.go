package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func pbkdfKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func itoa(n int) string { return strconv.Itoa(n) }

func TestHandshakeSucceedsWithCorrectPassword(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser("ada", "s3cret", RoleReadWrite))

	session := NewSession(store)
	salt, iterations, combined, err := session.AuthStart("ada", "client-nonce")
	require.NoError(t, err)
	assert.NotEmpty(t, salt)
	assert.Positive(t, iterations)

	// Simulate the client side of the exchange directly against the
	// credential the test just created, since this package owns both ends.
	cred, _, ok, err := store.Lookup("ada")
	require.NoError(t, err)
	require.True(t, ok)

	clientKey := hmacSHA256(pbkdfKey("s3cret", cred.Salt, cred.Iterations), []byte("Client Key"))
	authMessage := "client-nonce," + b64(cred.Salt) + ":" + itoa(cred.Iterations) + ":" + combined + "," + combined
	clientSignature := hmacSHA256(cred.StoredKey, []byte(authMessage))
	proof := xorBytes(clientKey, clientSignature)

	sig, err := session.AuthContinue(combined, b64(proof))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.True(t, session.Authenticated())
	assert.Equal(t, RoleReadWrite, session.Role())
}

func TestHandshakeFailsWithWrongNonce(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser("ada", "s3cret", RoleRead))

	session := NewSession(store)
	_, _, _, err = session.AuthStart("ada", "client-nonce")
	require.NoError(t, err)

	_, err = session.AuthContinue("wrong-nonce", "AAAA")
	assert.Error(t, err)
	assert.False(t, session.Authenticated())
}

func TestAuthorizeGatesByRoleAndPreAuth(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)
	session := NewSession(store)

	assert.NoError(t, session.Authorize("ping"))
	assert.Error(t, session.Authorize("insert"))

	session.authenticated = true
	session.role = RoleRead
	assert.NoError(t, session.Authorize("find"))
	assert.Error(t, session.Authorize("insert"))
	assert.Error(t, session.Authorize("drop_collection"))

	session.role = RoleAdmin
	assert.NoError(t, session.Authorize("drop_collection"))
}

func TestRBACMatrixMatchesSpecHierarchy(t *testing.T) {
	assert.True(t, IsPermitted(RoleAdmin, "drop_collection"))
	assert.False(t, IsPermitted(RoleReadWrite, "drop_collection"))
	assert.False(t, IsPermitted(RoleRead, "insert"))
	assert.True(t, IsPermitted(RoleReadWrite, "insert"))
	assert.True(t, IsPermitted(RoleRead, "find"))
	assert.True(t, IsPermitted(RoleReadWrite, "find"))
}
