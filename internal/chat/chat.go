// Package chat runs one chat turn: profile guard, pantry detection, upstream
// call and rendering of the answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/internal/gateway"
	"github.com/pageza/nutriado/backend/internal/render"
	"github.com/pageza/nutriado/backend/internal/session"
)

// Messages shown to the visitor
const (
	NeedProfileMessage   = "⚠️ Primero completá tu perfil y calculá tu IMC."
	BadProfileMessage    = "⚠️ Revisá los datos del perfil para calcular el IMC."
	ProfileReadyMessage  = "✅ Perfil listo. IMC: %s"
	UpstreamErrorMessage = "💥 Error hablando con el asistente."
)

// Tiers for replies that are not produced by the renderer
const (
	TierNotice render.Tier = "notice"
	TierError  render.Tier = "error"
)

var (
	// ErrEmptyMessage is returned for blank chat input
	ErrEmptyMessage = errors.New("empty message")
	// ErrNoProvider is returned when no upstream is configured
	ErrNoProvider = errors.New("no upstream provider configured")
	// ErrInvalidSessionID is returned for blank session IDs
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Reply is what the widget displays for one turn
type Reply struct {
	HTML   string      `json:"html"`
	Tier   render.Tier `json:"tier"`
	Notice bool        `json:"notice,omitempty"`
}

// Service drives chat turns against a provider and a session store
type Service struct {
	provider gateway.Provider
	store    session.Store
	log      logrus.FieldLogger
}

// NewService creates a Service. provider may be nil, in which case every
// turn yields the upstream error message.
func NewService(provider gateway.Provider, store session.Store, log logrus.FieldLogger) *Service {
	return &Service{provider: provider, store: store, log: log}
}

func notice(text string) *Reply {
	return &Reply{HTML: render.EscapeHTML(text), Tier: TierNotice, Notice: true}
}

// CreateSession starts an empty session
func (s *Service) CreateSession(ctx context.Context) (*session.State, error) {
	state := session.New()
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return state, nil
}

// Session returns the state of an existing session
func (s *Service) Session(ctx context.Context, id string) (*session.State, error) {
	return s.store.Get(ctx, id)
}

// EndSession forgets a session. Unknown sessions are not an error.
func (s *Service) EndSession(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SetProfile stores a normalized profile, creating the session if the
// visitor has not been seen before
func (s *Service) SetProfile(ctx context.Context, sessionID string, p session.Profile) (*Reply, *session.State, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > gateway.MaxSessionIDLength {
		return nil, nil, ErrInvalidSessionID
	}

	state, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		state = session.New()
		state.ID = sessionID
	} else if err != nil {
		return nil, nil, err
	}

	state.Profile = p.Normalize()
	if err := s.store.Save(ctx, state); err != nil {
		return nil, nil, fmt.Errorf("failed to save profile: %w", err)
	}

	if !state.Profile.Ready() {
		return notice(BadProfileMessage), state, nil
	}
	return notice(fmt.Sprintf(ProfileReadyMessage, formatIMC(state.Profile.IMC))), state, nil
}

// Turn sends one visitor message upstream and renders the answer.
// Upstream failures are logged and answered with UpstreamErrorMessage.
func (s *Service) Turn(ctx context.Context, sessionID, text string) (*Reply, error) {
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Profile.Ready() {
		return notice(NeedProfileMessage), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	if pantry := GuessPantry(text); len(pantry) > 0 {
		state.Pantry = pantry
	}
	if state.Pantry == nil {
		state.Pantry = []string{}
	}
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log := s.log.WithField("session_id", state.ID)

	payload, err := s.payload(state, text)
	if err != nil {
		return nil, err
	}

	if s.provider == nil {
		log.WithError(ErrNoProvider).Error("chat turn failed")
		return &Reply{HTML: render.EscapeHTML(UpstreamErrorMessage), Tier: TierError}, nil
	}

	start := time.Now()
	resp, err := s.provider.Forward(ctx, payload)
	if err != nil {
		log.WithError(err).WithField("provider", s.provider.Name()).Error("chat turn failed")
		return &Reply{HTML: render.EscapeHTML(UpstreamErrorMessage), Tier: TierError}, nil
	}

	msg := render.NormalizeBody(resp.Body)
	fields := logrus.Fields{
		"provider":   s.provider.Name(),
		"status":     resp.StatusCode,
		"tier":       msg.Tier,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(fields).Warn("upstream returned an error status")
	} else {
		log.WithFields(fields).Info("chat turn rendered")
	}

	return &Reply{HTML: msg.HTML, Tier: msg.Tier}, nil
}

// payload builds the upstream body with the session profile in the context
func (s *Service) payload(state *session.State, text string) (gateway.Payload, error) {
	p := gateway.NewPayload(text, state.ID, state.Pantry)
	if err := p.Context.Set("profile", state.Profile); err != nil {
		return gateway.Payload{}, err
	}
	return p, nil
}

// GuessPantry splits on commas only, so "esencia de vainilla" is one item.
// Items are trimmed and lowercased; blanks are dropped.
func GuessPantry(text string) []string {
	parts := gateway.SplitPantry(text)
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return parts
}

func formatIMC(imc float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", imc), ".0")
}
