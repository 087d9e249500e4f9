package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/response"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, env response.Envelope) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func recordedResult() *service.AdministerResult {
	now := time.Now().UTC()
	staff := "doc-7"
	return &service.AdministerResult{
		Record: &models.DoseRecord{
			ID:                "dr-1",
			SubjectID:         "p123",
			VaccineTemplateID: "vt9",
			DoseNumber:        2,
			AdministeredDate:  &now,
			AdministeredBy:    &staff,
		},
	}
}

func TestClientAdminister(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/administrations", r.URL.Path)
		writeEnvelope(t, w, http.StatusCreated, response.Envelope{Data: recordedResult()})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Token: "station-token"})
	result, err := client.Administer(context.Background(), service.AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
		Dose:              "2",
	})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Record.Administered())
	assert.Equal(t, "Bearer station-token", authHeader)
}

func TestClientAdministerDrive(t *testing.T) {
	var gotPath, gotSubject string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body struct {
			SubjectID string `json:"subject_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotSubject = body.SubjectID
		writeEnvelope(t, w, http.StatusCreated, response.Envelope{Data: recordedResult()})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	result, err := client.AdministerDrive(context.Background(), "drive-7", "u1", nil)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "/drives/drive-7/administrations", gotPath)
	assert.Equal(t, "u1", gotSubject)
}

func TestClientConflictIsDuplicateResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusConflict, response.Envelope{
			Data: recordedResult(),
			Meta: map[string]interface{}{"duplicate": true},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	result, err := client.Administer(context.Background(), service.AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
	})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.Record)
	assert.True(t, result.Record.Administered())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeEnvelope(t, w, http.StatusCreated, response.Envelope{Data: recordedResult()})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 3})
	result, err := client.Administer(context.Background(), service.AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
	})
	require.NoError(t, err)
	assert.True(t, result.Record.Administered())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientNetworkFailureIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 1})
	_, err := client.Administer(context.Background(), service.AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClientClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeEnvelope(t, w, http.StatusNotFound, response.Envelope{
			Error: appErrors.Clone(appErrors.ErrNotFound, "dose record not found"),
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.Administer(context.Background(), service.AdministerRequest{
		SubjectID:         "ghost",
		VaccineTemplateID: "vt9",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientGetDose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doses", r.URL.Path)
		assert.Equal(t, "p123", r.URL.Query().Get("subject_id"))
		assert.Equal(t, "2", r.URL.Query().Get("dose"))
		writeEnvelope(t, w, http.StatusOK, response.Envelope{Data: models.DoseView{
			DoseRecord: models.DoseRecord{ID: "dr-1", SubjectID: "p123", VaccineTemplateID: "vt9", DoseNumber: 2},
			Status:     models.DoseStatusDue,
		}})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	view, err := client.GetDose(context.Background(), "p123", "vt9", 2)
	require.NoError(t, err)
	assert.Equal(t, models.DoseStatusDue, view.Status)
	assert.Equal(t, "dr-1", view.ID)
}
