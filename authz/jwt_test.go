package authz

import (
	"testing"

	"github.com/rindwa/dispatch/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return &JWTService{secret: []byte("test-secret"), issuer: "dispatch-test", ttl: 0}
}

func TestJWTService_IssueAndValidateRoundTrip(t *testing.T) {
	svc := newTestJWTService()
	svc.ttl = 3600 * 1e9 // 1 hour, as a time.Duration in nanoseconds

	p := db.Principal{UserID: "user-1", Role: db.RoleStationAdmin, OrganisationID: "org-1", StationID: "station-1"}
	token, err := svc.Issue(p)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestJWTService_ValidateRejectsGarbage(t *testing.T) {
	svc := newTestJWTService()
	svc.ttl = 3600 * 1e9
	_, err := svc.Validate("not-a-valid-token")
	assert.Error(t, err)
}
