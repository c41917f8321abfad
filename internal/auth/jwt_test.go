package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	j, err := NewJWT("secret")
	require.NoError(t, err)
	user := model.User{UserID: "u1", DisplayName: "Maya Lin", Email: "maya@example.com"}

	token, err := j.Generate(user)
	require.NoError(t, err)

	got, err := j.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestJWTRejects(t *testing.T) {
	j, err := NewJWT("secret")
	require.NoError(t, err)
	user := model.User{UserID: "u1"}

	t.Run(
		"other secret", func(t *testing.T) {
			other, err := NewJWT("other")
			require.NoError(t, err)
			token, err := other.Generate(user)
			require.NoError(t, err)

			_, err = j.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		},
	)

	t.Run(
		"expired", func(t *testing.T) {
			past, err := NewJWT("secret")
			require.NoError(t, err)
			past.now = func() time.Time {
				return time.Now().Add(-48 * time.Hour)
			}
			token, err := past.Generate(user)
			require.NoError(t, err)

			_, err = j.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		},
	)

	t.Run(
		"no subject", func(t *testing.T) {
			token, err := j.Generate(model.User{})
			require.NoError(t, err)

			_, err = j.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		},
	)

	t.Run(
		"none algorithm", func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
				SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = j.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		},
	)

	t.Run(
		"garbage", func(t *testing.T) {
			_, err := j.Validate("not-a-token")
			assert.ErrorIs(t, err, ErrInvalidToken)
		},
	)
}

func TestNewJWTRequiresSecret(t *testing.T) {
	_, err := NewJWT("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
