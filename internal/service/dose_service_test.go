package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/qr"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

type scheduleRepoStub struct {
	doseRepoStub
	list []models.DoseRecord
}

func (s *scheduleRepoStub) ListBySubject(ctx context.Context, subjectID string) ([]models.DoseRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func TestScheduleDerivesStatuses(t *testing.T) {
	now := time.Now()
	administeredAt := now.Add(-30 * 24 * time.Hour)
	repo := &scheduleRepoStub{list: []models.DoseRecord{
		{ID: "dr-1", DueDate: now.Add(-31 * 24 * time.Hour), AdministeredDate: &administeredAt},
		{ID: "dr-2", DueDate: now.Add(-time.Hour)},
		{ID: "dr-3", DueDate: now.Add(3 * 24 * time.Hour)},
		{ID: "dr-4", DueDate: now.Add(60 * 24 * time.Hour)},
	}}
	svc := NewDoseService(repo, nil, 7*24*time.Hour)

	views, err := svc.Schedule(context.Background(), "p123", ScheduleFilter{})
	require.NoError(t, err)
	require.Len(t, views, 4)
	assert.Equal(t, models.DoseStatusAdministered, views[0].Status)
	assert.Equal(t, models.DoseStatusOverdue, views[1].Status)
	assert.Equal(t, models.DoseStatusDue, views[2].Status)
	assert.Equal(t, models.DoseStatusScheduled, views[3].Status)
}

func TestScheduleFilterByStatus(t *testing.T) {
	now := time.Now()
	repo := &scheduleRepoStub{list: []models.DoseRecord{
		{ID: "dr-1", DueDate: now.Add(-time.Hour)},
		{ID: "dr-2", DueDate: now.Add(60 * 24 * time.Hour)},
	}}
	svc := NewDoseService(repo, nil, 7*24*time.Hour)

	views, err := svc.Schedule(context.Background(), "p123", ScheduleFilter{
		Statuses: []models.DoseStatus{models.DoseStatusOverdue},
	})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "dr-1", views[0].ID)
}

func TestGetUnknownDose(t *testing.T) {
	repo := &scheduleRepoStub{}
	repo.records = map[string]models.DoseRecord{}
	svc := NewDoseService(repo, nil, 0)

	_, err := svc.Get(context.Background(), "ghost", "vt9", 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestQRPayloadValidation(t *testing.T) {
	svc := NewDoseService(&scheduleRepoStub{}, nil, 0)

	payload, err := svc.QRPayload(qr.RoleDoctor, "p123", "vt9", 2)
	require.NoError(t, err)
	assert.Equal(t, "doctor/p123/vt9?dose=2", payload)

	_, err = svc.QRPayload("nurse", "p123", "vt9", 2)
	require.Error(t, err)
	_, err = svc.QRPayload(qr.RoleDoctor, "", "vt9", 2)
	require.Error(t, err)
}
