package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/qr"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

type deepLinkTokenStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Consume(ctx context.Context, key string, dest interface{}) error
}

// ResolveRequest carries both addressing forms a shared link may use. The
// path form is authoritative; the query fields are a fallback kept for links
// minted before the path form existed.
type ResolveRequest struct {
	Path              string
	UserID            string
	VaccineTemplateID string
	Dose              string
}

// Resolution is a resolved deep link. Token is single-use: consuming it a
// second time fails, so reloading a confirmation page cannot replay the
// administration.
type Resolution struct {
	Payload   qr.Payload `json:"payload"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// DeepLinkService resolves shared administration links into payloads and
// guards each resolution with a one-time token.
type DeepLinkService struct {
	tokens   deepLinkTokenStore
	metrics  *MetricsService
	logger   *zap.Logger
	tokenTTL time.Duration
}

// NewDeepLinkService constructs the service. metrics is optional.
func NewDeepLinkService(tokens deepLinkTokenStore, metrics *MetricsService, logger *zap.Logger, tokenTTL time.Duration) *DeepLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &DeepLinkService{tokens: tokens, metrics: metrics, logger: logger, tokenTTL: tokenTTL}
}

func deepLinkKey(token string) string {
	return "deeplink:" + token
}

// Resolve turns a deep link into a payload plus a one-time confirmation
// token. When both addressing forms are present the path form wins.
func (s *DeepLinkService) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	payload, err := s.payloadFrom(req)
	if err != nil {
		s.observeDeepLink("malformed")
		return nil, err
	}

	token := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	if err := s.tokens.Set(ctx, deepLinkKey(token), payload, s.tokenTTL); err != nil {
		s.observeDeepLink("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue deep link token")
	}

	s.observeDeepLink("resolved")
	return &Resolution{Payload: payload, Token: token, ExpiresAt: expiresAt}, nil
}

// Consume spends a one-time token and returns the payload it was issued
// for. A missing token means it expired or was already spent.
func (s *DeepLinkService) Consume(ctx context.Context, token string) (*qr.Payload, error) {
	var payload qr.Payload
	if err := s.tokens.Consume(ctx, deepLinkKey(token), &payload); err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.observeDeepLink("replayed")
			return nil, appErrors.Clone(appErrors.ErrDeepLinkConsumed, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume deep link token")
	}
	s.observeDeepLink("consumed")
	return &payload, nil
}

func (s *DeepLinkService) payloadFrom(req ResolveRequest) (qr.Payload, error) {
	if req.Path != "" {
		role := qr.RoleDoctor
		payload, err := qr.Decode(req.Path, role)
		if err == nil {
			return payload, nil
		}
		if payload, workerErr := qr.Decode(req.Path, qr.RoleWorker); workerErr == nil {
			return payload, nil
		}
		return qr.Payload{}, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, appErrors.ErrMalformedPayload.Message)
	}

	if req.UserID == "" || req.VaccineTemplateID == "" {
		return qr.Payload{}, appErrors.Clone(appErrors.ErrMalformedPayload, "deep link names no subject")
	}
	return qr.Payload{
		Role:              qr.RoleDoctor,
		SubjectID:         req.UserID,
		VaccineTemplateID: req.VaccineTemplateID,
		Dose:              req.Dose,
	}, nil
}

func (s *DeepLinkService) observeDeepLink(result string) {
	if s.metrics != nil {
		s.metrics.ObserveDeepLink(result)
	}
}
