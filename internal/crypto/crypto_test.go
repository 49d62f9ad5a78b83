// internal/crypto/crypto_test.go
package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	assert := assert.New(t)

	svc, err := NewEncryptionService(testKey)
	assert.NoError(err)

	ciphertext, err := svc.Encrypt("p@ssw0rd with spaces and ünicode")
	assert.NoError(err)
	assert.NotEqual("p@ssw0rd with spaces and ünicode", ciphertext)

	plaintext, err := svc.Decrypt(ciphertext)
	assert.NoError(err)
	assert.Equal("p@ssw0rd with spaces and ünicode", plaintext)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	assert := assert.New(t)

	svc1, err := NewEncryptionService(testKey)
	assert.NoError(err)
	svc2, err := NewEncryptionService("ffffffffffffffffffffffffffffffff")
	assert.NoError(err)

	ciphertext, err := svc1.Encrypt("secret")
	assert.NoError(err)

	_, err = svc2.Decrypt(ciphertext)
	assert.Error(err)
}

func TestNewEncryptionServiceRejectsShortKey(t *testing.T) {
	_, err := NewEncryptionService("too-short")
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	assert.NoError(t, err)

	_, err = svc.Decrypt("not base64 !!!")
	assert.Error(t, err)

	_, err = svc.Decrypt("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}
