// Package session keeps the per-visitor chat state: the health profile and
// the last pantry that was sent upstream.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session does not exist or has expired
var ErrNotFound = errors.New("session not found")

// Profile is the visitor's health profile
type Profile struct {
	Edad     int     `json:"edad"`
	Sexo     string  `json:"sexo"`
	PesoKg   float64 `json:"pesoKg"`
	AlturaCm float64 `json:"alturaCm"`
	IMC      float64 `json:"imc"`
}

// UnmarshalJSON accepts "peso" and "altura" as aliases of pesoKg and
// alturaCm
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Edad     *float64 `json:"edad"`
		Sexo     string   `json:"sexo"`
		PesoKg   *float64 `json:"pesoKg"`
		Peso     *float64 `json:"peso"`
		AlturaCm *float64 `json:"alturaCm"`
		Altura   *float64 `json:"altura"`
		IMC      *float64 `json:"imc"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Profile{Sexo: raw.Sexo}
	if raw.Edad != nil {
		p.Edad = int(*raw.Edad)
	}
	p.PesoKg = firstSet(raw.PesoKg, raw.Peso)
	p.AlturaCm = firstSet(raw.AlturaCm, raw.Altura)
	p.IMC = firstSet(raw.IMC)
	return nil
}

func firstSet(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

// Normalize clamps invalid numbers to 0 and computes the IMC from weight
// and height when it was not given
func (p Profile) Normalize() Profile {
	p.Sexo = strings.TrimSpace(p.Sexo)
	if p.Edad < 0 {
		p.Edad = 0
	}
	p.PesoKg = clamp(p.PesoKg)
	p.AlturaCm = clamp(p.AlturaCm)
	p.IMC = clamp(p.IMC)
	if p.IMC == 0 {
		p.IMC = ComputeIMC(p.PesoKg, p.AlturaCm)
	}
	return p
}

// Ready reports whether the profile unlocks the chat
func (p Profile) Ready() bool {
	return p.IMC > 0
}

// ComputeIMC returns weight / height² with height in centimetres, rounded to
// one decimal. A zero height yields 0.
func ComputeIMC(pesoKg, alturaCm float64) float64 {
	m := alturaCm / 100
	if m <= 0 {
		return 0
	}
	return math.Round(pesoKg/(m*m)*10) / 10
}

func clamp(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// State is everything remembered about one chat session
type State struct {
	ID        string    `json:"id"`
	Profile   Profile   `json:"profile"`
	Pantry    []string  `json:"pantry"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New returns an empty State with a fresh ID
func New() *State {
	now := time.Now().UTC()
	return &State{
		ID:        NewID(),
		Pantry:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewID generates a session ID
func NewID() string {
	return uuid.New().String()
}

// Store persists session state
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
}
