// Package pipeline runs one recipe extraction in the background: content
// adapter, structured extraction, image hand-off and the durable write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/recipeimport/internal/adapters"
	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/jobs"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/recipes"
	"github.com/jo-hoe/recipeimport/internal/structured"
)

// Extractor produces the structured recipe from gathered text.
type Extractor interface {
	Extract(ctx context.Context, in structured.Input) structured.Result
}

// WorkItem identifies one import.
type WorkItem struct {
	RecipeID string
	URL      string
	Platform platform.Platform
}

// Worker drives a job from importing to pending_review or failed.
type Worker struct {
	Log       *slog.Logger
	Jobs      *jobs.Store
	Records   recipes.Store
	Adapters  *adapters.Set
	Extractor Extractor
	Metrics   *metrics.Metrics
}

func New(log *slog.Logger, js *jobs.Store, records recipes.Store, set *adapters.Set, ex Extractor, m *metrics.Metrics) *Worker {
	return &Worker{
		Log:       logging.OrDiscard(log).With("component", "pipeline"),
		Jobs:      js,
		Records:   records,
		Adapters:  set,
		Extractor: ex,
		Metrics:   m,
	}
}

// Task returns the work as a jobs.Task for the detached runner.
func (w *Worker) Task(item WorkItem) jobs.Task {
	return func(ctx context.Context) {
		_ = w.Process(ctx, item)
	}
}

// Process runs the extraction to a terminal state. Every failure, panics
// included, ends in Jobs.Fail and a best-effort MarkFailed; the returned
// error is informational.
func (w *Worker) Process(ctx context.Context, item WorkItem) (err error) {
	start := time.Now()
	log := w.Log.With("recipe_id", item.RecipeID, "platform", string(item.Platform))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panic", "panic", rec)
			w.finishWithError(item.RecipeID, common.ReasonInternalExtraction)
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
		w.Metrics.PipelineDuration(string(item.Platform), time.Since(start))
	}()

	adapter, err := w.Adapters.For(item.Platform)
	if err != nil {
		w.finishWithError(item.RecipeID, err.Error())
		return err
	}

	content, err := adapter.Extract(ctx, adapters.Request{
		URL:      item.URL,
		RecipeID: item.RecipeID,
		Platform: item.Platform,
		Progress: func(stage, message string) { w.Jobs.EmitProgress(item.RecipeID, stage, message) },
	})
	if err != nil {
		log.Error("content extraction failed", "err", err)
		w.finishWithError(item.RecipeID, reasonFor(err))
		return fmt.Errorf("extract content: %w", err)
	}

	w.Jobs.EmitProgress(item.RecipeID, common.StageExtractingRecipe, "Extracting recipe details...")
	res := w.Extractor.Extract(ctx, structured.Input{
		Title:       content.Title,
		Description: content.Description,
		Captions:    content.Captions,
		Transcript:  content.Transcript,
	})
	w.Metrics.StructuredExtraction(res.Mode)

	// The upload overlapped the model call; by now it is usually done.
	imageURL := content.Image.Wait(ctx)

	w.Jobs.EmitProgress(item.RecipeID, common.StageSaving, "Saving recipe...")
	completion := recipes.Completion{
		Title:    completedTitle(res.Title, content.Title),
		ImageURL: imageURL,
		Result:   res.Extraction(),
	}
	if err := w.Records.Complete(ctx, item.RecipeID, completion); err != nil {
		log.Error("save extraction", "err", err)
		w.finishWithError(item.RecipeID, common.ReasonSaveFailed)
		return fmt.Errorf("save extraction: %w", err)
	}

	w.Jobs.Complete(item.RecipeID, completion.Result)
	w.Metrics.JobFinished(string(recipes.StatusPendingReview))
	log.Info("extraction complete",
		"mode", res.Mode,
		"ingredients", len(completion.Result.Ingredients),
		"steps", len(completion.Result.Steps),
		"duration", time.Since(start).String())
	return nil
}

// finishWithError fails the job, then best-effort marks the record failed.
// The record write uses a fresh context so a cancelled pipeline still
// leaves a terminal row behind.
func (w *Worker) finishWithError(recipeID, reason string) {
	w.Jobs.Fail(recipeID, reason)
	w.Metrics.JobFinished(string(recipes.StatusFailed))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Records.MarkFailed(ctx, recipeID); err != nil {
		w.Log.Warn("mark record failed", "recipe_id", recipeID, "err", err)
	}
}

func reasonFor(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return common.ReasonExtractionFailed
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return common.ReasonExtractionFailed
}

// completedTitle keeps the stored title when extraction produced only the
// placeholder.
func completedTitle(extracted, source string) string {
	switch extracted {
	case "", common.UntitledRecipePlaceholder:
		if source != "" && source != common.UntitledPlaceholder {
			return source
		}
		return ""
	default:
		return extracted
	}
}
