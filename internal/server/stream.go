package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jo-hoe/recipeimport/internal/auth"
	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/jobs"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

type streamEvent struct {
	name string
	data any
}

func isTerminalEvent(name string) bool {
	return name == common.EventComplete || name == common.EventError
}

// streamSink buffers store notifications for one stream. Progress events
// share a bounded buffer and are dropped when it is full; the terminal event
// has a slot of its own so it is never lost behind them.
type streamSink struct {
	events   chan streamEvent
	terminal chan streamEvent
	log      *slog.Logger
}

func newStreamSink(size int, log *slog.Logger) *streamSink {
	return &streamSink{
		events:   make(chan streamEvent, size),
		terminal: make(chan streamEvent, 1),
		log:      log,
	}
}

// listen is registered with the job store and must not block.
func (s *streamSink) listen(name string, data any) {
	ch := s.events
	if isTerminalEvent(name) {
		ch = s.terminal
	}
	select {
	case ch <- streamEvent{name: name, data: data}:
	default:
		s.log.Warn("stream buffer full, dropping event", "event", name)
	}
}

// eventWriter frames server-sent events.
type eventWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (e *eventWriter) send(name string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (e *eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	return e.rc.Flush()
}

// handleStream exposes one job's lifecycle as an event stream. The listener
// is registered together with the progress snapshot, so nothing emitted
// after the snapshot can be missed and nothing in it is delivered twice.
func (svc *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}
	userID, _ := auth.UserFromContext(r.Context())
	log := svc.Log.With("recipe_id", id)

	sink := newStreamSink(common.StreamBufferSize, log)
	sub, job := svc.Jobs.SubscribeSnapshot(id, sink.listen)
	defer svc.Jobs.Unsubscribe(sub)

	if job != nil && job.OwnerID != userID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	h := w.Header()
	h.Set(common.HeaderContentType, common.ContentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	svc.Metrics.StreamOpened()
	defer svc.Metrics.StreamClosed()

	ew := &eventWriter{w: w, rc: rc}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("stream panic", "panic", rec)
			_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonInternal})
		}
	}()

	if err := ew.send(common.EventTest, map[string]string{"message": "Connection established"}); err != nil {
		return
	}

	if job == nil {
		svc.replayRecord(r.Context(), ew, id, userID, log)
		return
	}
	for _, p := range job.Progress {
		if err := ew.send(common.EventProgress, p); err != nil {
			return
		}
	}
	if job.Terminal() {
		_ = sendTerminal(ew, job)
		return
	}

	svc.streamLive(r.Context(), ew, id, userID, sink, log)
}

// streamLive forwards live events until a terminal one, the client leaves,
// or a heartbeat finds the job finished or gone.
func (svc *Service) streamLive(ctx context.Context, ew *eventWriter, id, userID string, sink *streamSink, log *slog.Logger) {
	interval := svc.Cfg.Server.StreamHeartbeat
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream client left")
			return
		case ev := <-sink.events:
			if err := ew.send(ev.name, ev.data); err != nil {
				return
			}
		case ev := <-sink.terminal:
			// buffered progress was emitted before the terminal event
			if err := drainProgress(ew, sink); err != nil {
				return
			}
			_ = ew.send(ev.name, ev.data)
			return
		case <-ticker.C:
			if err := ew.comment("ping"); err != nil {
				return
			}
			cur, ok := svc.Jobs.Get(id)
			if ok && !cur.Terminal() {
				continue
			}
			if done, err := drain(ew, sink); done || err != nil {
				return
			}
			if !ok {
				svc.replayRecord(ctx, ew, id, userID, log)
				return
			}
			_ = sendTerminal(ew, cur)
			return
		}
	}
}

// drain forwards buffered progress, then the terminal event if one arrived,
// and reports whether it was sent.
func drain(ew *eventWriter, sink *streamSink) (bool, error) {
	if err := drainProgress(ew, sink); err != nil {
		return false, err
	}
	select {
	case ev := <-sink.terminal:
		return true, ew.send(ev.name, ev.data)
	default:
		return false, nil
	}
}

func drainProgress(ew *eventWriter, sink *streamSink) error {
	for {
		select {
		case ev := <-sink.events:
			if err := ew.send(ev.name, ev.data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func sendTerminal(ew *eventWriter, job *jobs.Job) error {
	if job.Status == recipes.StatusPendingReview && job.Result != nil {
		return ew.send(common.EventComplete, job.Result.Normalized())
	}
	reason := job.ErrorReason
	if reason == "" {
		reason = common.ReasonExtractionFailed
	}
	return ew.send(common.EventError, jobs.ErrorEvent{Reason: reason})
}

// replayRecord answers from the durable record once the in-memory job is
// gone.
func (svc *Service) replayRecord(ctx context.Context, ew *eventWriter, id, userID string, log *slog.Logger) {
	rec, err := svc.Records.Get(ctx, id)
	switch {
	case errors.Is(err, recipes.ErrNotFound):
		_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonRecipeNotFound})
		return
	case err != nil:
		log.Error("load recipe for stream", "err", err)
		_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonInternal})
		return
	}
	if rec.UserID != userID {
		_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonRecipeNotFound})
		return
	}

	switch rec.Status {
	case recipes.StatusPendingReview, recipes.StatusActive:
		_ = ew.send(common.EventComplete, rec.Result())
	case recipes.StatusFailed:
		_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonExtractionFailed})
	default:
		_ = ew.send(common.EventError, jobs.ErrorEvent{Reason: common.ReasonExtractionExpired})
	}
}
