// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api implements the management HTTP API of the switch agent.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/netfab/switchd/agent/hwsync/asicsim"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
	api "github.com/netfab/switchd/private/mgmtapi"
	"github.com/netfab/switchd/qsfp"
	"github.com/netfab/switchd/qsfp/fsm"
)

// StateSource provides the committed switch state.
type StateSource interface {
	State() *state.SwitchState
}

// Hardware exposes the programmed hardware tables.
type Hardware interface {
	Usage() []asicsim.TableUsage
	Dump(w io.Writer)
}

// Transceivers is the transceiver manager.
type Transceivers interface {
	Statuses() []qsfp.Status
	Status(id qsfp.TransceiverID) (qsfp.Status, error)
	UpdateStateBlocking(ctx context.Context, id qsfp.TransceiverID,
		event fsm.Event) (fsm.Result, error)
	PauseRemediation(timeout time.Duration)
	PauseRemediationUntil() time.Time
}

// Server serves the management API. Nil components answer with 404.
type Server struct {
	State        StateSource
	Hardware     Hardware
	Transceivers Transceivers
	// Reload re-applies the switch configuration.
	Reload func(ctx context.Context) error
}

// Handler returns the router serving s.
func Handler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))
	r.Get("/state", s.GetState)
	r.Get("/state/summary", s.GetStateSummary)
	r.Get("/hw", s.GetHardware)
	r.Route("/transceivers", func(r chi.Router) {
		r.Get("/", s.GetTransceivers)
		r.Get("/{id}", s.GetTransceiver)
		r.Post("/{id}/events/{event}", s.PostTransceiverEvent)
	})
	r.Post("/remediation/pause", s.PostRemediationPause)
	r.Post("/config/reload", s.PostConfigReload)
	return r
}

// GetState returns the committed state as legacy JSON document.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	if s.State == nil {
		notAvailable(w, "state")
		return
	}
	raw, err := state.EncodeLegacy(s.State.State())
	if err != nil {
		internalError(w, "unable to encode state", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// StateSummary is the size of the committed state.
type StateSummary struct {
	Generation uint64         `json:"generation"`
	Categories map[string]int `json:"categories"`
}

// GetStateSummary returns the number of entries per category.
func (s *Server) GetStateSummary(w http.ResponseWriter, r *http.Request) {
	if s.State == nil {
		notAvailable(w, "state")
		return
	}
	st := s.State.State()
	sum := StateSummary{
		Generation: st.Generation(),
		Categories: make(map[string]int),
	}
	for _, c := range state.NewStateDelta(state.NewSwitchState(), st).Summary() {
		sum.Categories[c.Category] = c.Added
	}
	api.JSONResponse(w, sum)
}

// GetHardware returns the table usage of the hardware. With format=table,
// the programmed entries are dumped as text.
func (s *Server) GetHardware(w http.ResponseWriter, r *http.Request) {
	if s.Hardware == nil {
		notAvailable(w, "hardware")
		return
	}
	if r.URL.Query().Get("format") == "table" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.Hardware.Dump(w)
		return
	}
	api.JSONResponse(w, s.Hardware.Usage())
}

// GetTransceivers returns the status of all transceivers.
func (s *Server) GetTransceivers(w http.ResponseWriter, r *http.Request) {
	if s.Transceivers == nil {
		notAvailable(w, "transceivers")
		return
	}
	api.JSONResponse(w, s.Transceivers.Statuses())
}

// GetTransceiver returns the status of one transceiver.
func (s *Server) GetTransceiver(w http.ResponseWriter, r *http.Request) {
	if s.Transceivers == nil {
		notAvailable(w, "transceivers")
		return
	}
	id, ok := transceiverID(w, r)
	if !ok {
		return
	}
	status, err := s.Transceivers.Status(id)
	if err != nil {
		transceiverError(w, err)
		return
	}
	api.JSONResponse(w, status)
}

// EventResponse is the result of a transceiver event.
type EventResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Handled bool   `json:"handled"`
}

// PostTransceiverEvent processes an event on the state machine of one
// transceiver. Rejected events are reported with Handled set to false.
func (s *Server) PostTransceiverEvent(w http.ResponseWriter, r *http.Request) {
	if s.Transceivers == nil {
		notAvailable(w, "transceivers")
		return
	}
	id, ok := transceiverID(w, r)
	if !ok {
		return
	}
	event, err := fsm.ParseEvent(chi.URLParam(r, "event"))
	if err != nil {
		badRequest(w, "invalid event", err)
		return
	}
	res, err := s.Transceivers.UpdateStateBlocking(r.Context(), id, event)
	if err != nil {
		transceiverError(w, err)
		return
	}
	log.FromCtx(r.Context()).Info("Processed transceiver event via API",
		"transceiver", id, "event", event, "from", res.From, "to", res.To,
		"handled", res.Handled)
	api.JSONResponse(w, EventResponse{
		From:    res.From.String(),
		To:      res.To.String(),
		Handled: res.Handled,
	})
}

// PauseResponse reports until when remediation is paused.
type PauseResponse struct {
	Until time.Time `json:"until"`
}

// PostRemediationPause pauses remediation of all transceivers for the
// duration given in the timeout query parameter. A zero timeout resumes
// remediation.
func (s *Server) PostRemediationPause(w http.ResponseWriter, r *http.Request) {
	if s.Transceivers == nil {
		notAvailable(w, "transceivers")
		return
	}
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		badRequest(w, "missing timeout", nil)
		return
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout < 0 {
		badRequest(w, "invalid timeout", err)
		return
	}
	s.Transceivers.PauseRemediation(timeout)
	log.FromCtx(r.Context()).Info("Paused remediation via API", "timeout", timeout)
	api.JSONResponse(w, PauseResponse{Until: s.Transceivers.PauseRemediationUntil()})
}

// PostConfigReload re-applies the switch configuration.
func (s *Server) PostConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.Reload == nil {
		notAvailable(w, "config reload")
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		internalError(w, "reloading config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func transceiverID(w http.ResponseWriter, r *http.Request) (qsfp.TransceiverID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		badRequest(w, "invalid transceiver id", err)
		return 0, false
	}
	return qsfp.TransceiverID(id), true
}

func transceiverError(w http.ResponseWriter, err error) {
	if errors.Is(err, qsfp.ErrUnknownTransceiver) {
		api.ErrorResponse(w, api.Problem{
			Detail: api.StringRef(err.Error()),
			Status: http.StatusNotFound,
			Title:  "unknown transceiver",
			Type:   api.StringRef(api.NotFound),
		})
		return
	}
	internalError(w, "transceiver error", err)
}

func notAvailable(w http.ResponseWriter, what string) {
	api.ErrorResponse(w, api.Problem{
		Status: http.StatusNotFound,
		Title:  what + " not available",
		Type:   api.StringRef(api.NotFound),
	})
}

func badRequest(w http.ResponseWriter, title string, err error) {
	p := api.Problem{
		Status: http.StatusBadRequest,
		Title:  title,
		Type:   api.StringRef(api.BadRequest),
	}
	if err != nil {
		p.Detail = api.StringRef(err.Error())
	}
	api.ErrorResponse(w, p)
}

func internalError(w http.ResponseWriter, title string, err error) {
	api.ErrorResponse(w, api.Problem{
		Detail: api.StringRef(err.Error()),
		Status: http.StatusInternalServerError,
		Title:  title,
		Type:   api.StringRef(api.InternalError),
	})
}
