package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Issue_And_Verify_Token(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	userID := uuid.NewString()
	token, err := issuer.Issue(userID)
	req.NoError(err)

	claims, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal(userID, claims.UserID)
	req.Equal("snappy-server", claims.Issuer)
}

func Test_Verify_Rejects_Foreign_Signature(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	other := NewTokenIssuer("other-secret", time.Hour)

	token, err := other.Issue(uuid.NewString())
	req.NoError(err)

	_, err = issuer.Verify(token)
	req.Error(err)
}

func Test_Verify_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue(uuid.NewString())
	req.NoError(err)

	_, err = issuer.Verify(token)
	req.Error(err)
}
