// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook receives raw forwarded emails from the inbound mail
// provider. The provider POSTs the raw RFC 5322 message with the envelope
// sender in a header; whatever the import pipeline decides, the response is
// 200 — a non-2xx would make the provider retry or bounce, and the product
// contract is that the original sender never sees a failure.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/lettervault/ingestion/internal/importer"
)

// EnvelopeFromHeader carries the SMTP envelope sender on inbound posts.
const EnvelopeFromHeader = "X-Envelope-From"

// Pipeline is the import entry point the handler drives.
type Pipeline interface {
	Import(ctx context.Context, envelopeFrom string, raw io.Reader) importer.Outcome
}

// Handler processes inbound email posts.
type Handler struct {
	pipeline Pipeline
}

// NewHandler creates an inbound email handler.
func NewHandler(pipeline Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// ServeInbound handles one raw inbound email POST.
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	envelopeFrom := r.Header.Get(EnvelopeFromHeader)
	if envelopeFrom == "" {
		slog.Warn("inbound post without envelope sender")
		respond(w, importer.Outcome{Status: importer.StatusInvalidSender})
		return
	}

	outcome := h.pipeline.Import(r.Context(), envelopeFrom, r.Body)

	switch outcome.Status {
	case importer.StatusStored:
		slog.Info("inbound email stored",
			"from", envelopeFrom,
			"item", outcome.StoredID,
			"locked", outcome.Locked,
		)
	case importer.StatusError, importer.StatusOversized:
		// Logged, dropped, acknowledged. No retry from this side.
		slog.Error("inbound email dropped",
			"from", envelopeFrom,
			"status", string(outcome.Status),
			"error", outcome.Err,
		)
	default:
		slog.Info("inbound email skipped",
			"from", envelopeFrom,
			"status", string(outcome.Status),
		)
	}

	respond(w, outcome)
}

// respond always acknowledges with 200; the body is informational only.
func respond(w http.ResponseWriter, outcome importer.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	body := struct {
		Status     string `json:"status"`
		ItemID     string `json:"item_id,omitempty"`
		Reason     string `json:"reason,omitempty"`
		ExistingID string `json:"existing_id,omitempty"`
	}{
		Status:     string(outcome.Status),
		ItemID:     outcome.StoredID,
		Reason:     string(outcome.DuplicateReason),
		ExistingID: outcome.ExistingID,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Serve starts the inbound webhook server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", handler.ServeInbound)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind inbound port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("inbound webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("inbound webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("inbound webhook server error", "error", err)
		}
	}()

	return ready, nil
}
