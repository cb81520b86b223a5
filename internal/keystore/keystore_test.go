package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/apperr"
)

func TestCreateAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")

	pub, err := Create(path, "correct horse battery staple", LightScryptN, LightScryptP)
	require.NoError(t, err)

	priv, err := Open(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, pub, priv.Public())
}

func TestCreateRejectsShortPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")

	_, err := Create(path, "short12", LightScryptN, LightScryptP)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "keystore file must not be written on rejection")
}

func TestOpenWrongPassphraseIsUniform(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")

	_, err := Create(path, "correct horse battery staple", LightScryptN, LightScryptP)
	require.NoError(t, err)

	_, err = Open(path, "wrong password")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidKeystore))
}

func TestOpenTamperedCiphertextIsUniform(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")

	data, _, err := Generate("correct horse battery staple", LightScryptN, LightScryptP)
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	// flip a byte in the base64 ciphertext body (still valid base64 length).
	raw := []byte(rec.Crypto.CipherText)
	raw[0] = raw[0] ^ 0x01
	rec.Crypto.CipherText = string(raw)

	tampered, err := json.Marshal(rec)
	require.NoError(t, err)

	_, err = OpenBytes(tampered, "correct horse battery staple")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidKeystore))
}

func TestOpenMalformedJSONReturnsSameCode(t *testing.T) {
	_, err := OpenBytes([]byte("not json at all"), "whatever")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidKeystore))
}

func TestPeekPublicKeyDoesNotRequirePassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")

	pub, err := Create(path, "correct horse battery staple", LightScryptN, LightScryptP)
	require.NoError(t, err)

	peeked, err := PeekPublicKey(path)
	require.NoError(t, err)
	assert.Equal(t, pub, peeked)
}

func TestRecordNeverContainsSensitiveFieldNames(t *testing.T) {
	data, _, err := Generate("correct horse battery staple", LightScryptN, LightScryptP)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assertNoSensitiveKeys(t, raw)
}

func assertNoSensitiveKeys(t *testing.T, v interface{}) {
	t.Helper()
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			lower := strings.ToLower(k)
			for _, bad := range []string{"secretkey", "privatekey", "keypair", "seed", "mnemonic", "keymaterial"} {
				assert.NotEqual(t, bad, lower, "field name %q looks like key material", k)
			}
			assertNoSensitiveKeys(t, child)
		}
	case []interface{}:
		for _, child := range val {
			assertNoSensitiveKeys(t, child)
		}
	}
}
