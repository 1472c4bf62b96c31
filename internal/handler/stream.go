package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

// progressEvent is the payload of a "progress" event.
type progressEvent struct {
	Step       int      `json:"step"`
	Direction  string   `json:"direction"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	SourcePath []string `json:"source_path"`
	TargetPath []string `json:"target_path"`
}

// eventWriter writes server-sent events and flushes after each one.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

// run streams one search as server-sent events:
//
//	start     {id, start, end}
//	replaced  {id} of the search this one stopped, if any
//	progress  one per step
//	result    the final result, or error {error}
//	stopped   when a newer search or the client ended this one
//	finished  always last
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, id, prev, done := h.begin(r.Context())
	defer done()

	log := h.log.With(slog.String("search_id", id))
	ev := newEventWriter(w)
	send := func(event string, v any) {
		if err := ev.send(event, v); err != nil {
			log.Debug("event not delivered", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
	defer send("finished", map[string]string{"id": id})

	send("start", map[string]string{"id": id, "start": req.Start, "end": req.End})
	if prev != "" {
		send("replaced", map[string]string{"id": prev})
	}

	res, err := h.explorer.Search(ctx, req, func(p search.Progress) {
		send("progress", progressEvent{
			Step:       p.Step,
			Direction:  p.Direction.String(),
			Source:     p.Source,
			Target:     p.Target,
			SourcePath: p.SourcePath,
			TargetPath: p.TargetPath,
		})
	})
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("search stopped")
		send("stopped", map[string]string{"id": id})
	case err != nil:
		log.Warn("search failed", slog.String("error", err.Error()))
		send("error", map[string]string{"error": err.Error()})
	default:
		send("result", h.newPathResponse(res))
	}
}
