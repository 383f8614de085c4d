package httpgin

import (
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newToken signs an HS256 access token the way the account service does.
func newToken(secret string, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func TestParseToken(t *testing.T) {
	tok, err := newToken(testSecret, 5, RoleUser, time.Minute)
	require.NoError(t, err)

	claims, err := parseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.UserID)
	assert.Equal(t, RoleUser, claims.Role)

	_, err = parseToken("wrong", tok)
	assert.Error(t, err)

	expired, err := newToken(testSecret, 5, RoleUser, -time.Minute)
	require.NoError(t, err)
	_, err = parseToken(testSecret, expired)
	assert.Error(t, err)

	anonymous, err := newToken(testSecret, 0, RoleUser, time.Minute)
	require.NoError(t, err)
	_, err = parseToken(testSecret, anonymous)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 5, Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = parseToken(testSecret, none)
	assert.Error(t, err)
}
