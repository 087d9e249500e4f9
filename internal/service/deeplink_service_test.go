package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxport/vaxport-api/internal/qr"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

func newDeepLinkFixture() (*DeepLinkService, *cacheStub) {
	cache := newCacheStub()
	return NewDeepLinkService(cache, nil, nil, time.Minute), cache
}

func TestResolvePathForm(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	resolution, err := svc.Resolve(context.Background(), ResolveRequest{Path: "doctor/p123/vt9?dose=2"})
	require.NoError(t, err)
	assert.Equal(t, qr.Payload{Role: qr.RoleDoctor, SubjectID: "p123", VaccineTemplateID: "vt9", Dose: "2"}, resolution.Payload)
	assert.NotEmpty(t, resolution.Token)
}

func TestResolveQueryFallback(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	resolution, err := svc.Resolve(context.Background(), ResolveRequest{
		UserID:            "p123",
		VaccineTemplateID: "vt9",
		Dose:              "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "p123", resolution.Payload.SubjectID)
	assert.Equal(t, "2", resolution.Payload.Dose)
}

func TestResolvePathWinsOverQuery(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	resolution, err := svc.Resolve(context.Background(), ResolveRequest{
		Path:              "doctor/path-subject/path-vaccine",
		UserID:            "query-subject",
		VaccineTemplateID: "query-vaccine",
	})
	require.NoError(t, err)
	assert.Equal(t, "path-subject", resolution.Payload.SubjectID)
	assert.Equal(t, "path-vaccine", resolution.Payload.VaccineTemplateID)
}

func TestResolveWorkerPath(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	resolution, err := svc.Resolve(context.Background(), ResolveRequest{Path: "worker/u2/drive-7"})
	require.NoError(t, err)
	assert.Equal(t, qr.RoleWorker, resolution.Payload.Role)
	assert.Equal(t, "drive-7", resolution.Payload.VaccineTemplateID)
}

func TestResolveMalformed(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	for _, req := range []ResolveRequest{
		{Path: "not-a-valid-path"},
		{Path: "doctor//"},
		{},
		{UserID: "p123"},
	} {
		_, err := svc.Resolve(context.Background(), req)
		require.Error(t, err, "request %+v", req)
		assert.True(t, appErrors.Is(err, appErrors.ErrMalformedPayload))
	}
}

func TestConsumeTokenIsOneTime(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	resolution, err := svc.Resolve(context.Background(), ResolveRequest{Path: "doctor/p123/vt9?dose=2"})
	require.NoError(t, err)

	payload, err := svc.Consume(context.Background(), resolution.Token)
	require.NoError(t, err)
	assert.Equal(t, resolution.Payload, *payload)

	// A page refresh replays the token and must be refused.
	_, err = svc.Consume(context.Background(), resolution.Token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDeepLinkConsumed))
}

func TestConsumeUnknownToken(t *testing.T) {
	svc, _ := newDeepLinkFixture()

	_, err := svc.Consume(context.Background(), "never-issued")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDeepLinkConsumed))
}
