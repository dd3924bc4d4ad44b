package adapters

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/transcribe"
)

// audioTranscriber wraps a Transcriber so that every failure degrades to an
// empty transcript.
type audioTranscriber struct {
	t       Transcriber
	metrics *metrics.Metrics
	log     *slog.Logger
}

func (a audioTranscriber) transcribe(ctx context.Context, audio []byte, filename string) string {
	if a.t == nil {
		a.metrics.Transcription("skipped")
		return ""
	}
	tr, err := a.t.Transcribe(ctx, audio, filename)
	switch {
	case errors.Is(err, transcribe.ErrNotConfigured):
		a.log.Warn("transcription skipped", "reason", "not configured")
		a.metrics.Transcription("skipped")
		return ""
	case err != nil:
		a.log.Error("transcription failed", "err", err)
		a.metrics.Transcription("error")
		return ""
	}
	a.metrics.Transcription("ok")
	return tr.Text
}
