package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("unit-test-secret", "master", time.Hour)

	token, err := svc.CreateToken("admin")
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	svc := NewService("secret-a", "master", time.Hour)
	other := NewService("secret-b", "master", time.Hour)

	token, err := svc.CreateToken("admin")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestHMACKeyRoundTrip(t *testing.T) {
	svc := NewService("jwt", "master-secret", time.Hour)

	key := svc.GenerateHMACKey("ward-app")
	userID, err := svc.VerifyHMACKey(key)
	require.NoError(t, err)
	assert.Equal(t, "ward-app", userID)
}

func TestHMACKeyTamperRejected(t *testing.T) {
	svc := NewService("jwt", "master-secret", time.Hour)

	key := svc.GenerateHMACKey("ward-app")
	_, err := svc.VerifyHMACKey("other-app." + key[len("ward-app."):])
	assert.Error(t, err)

	_, err = svc.VerifyHMACKey("no-signature")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
