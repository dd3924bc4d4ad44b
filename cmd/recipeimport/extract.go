package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/jobs"
	"github.com/jo-hoe/recipeimport/internal/pipeline"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

const cliUserID = "cli"

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Run the extraction pipeline for one URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure(true)
			if err != nil {
				return err
			}
			rawURL := strings.TrimSpace(args[0])

			records := recipes.NewMemoryStore()
			a, err := newApp(cfg, logger, records)
			if err != nil {
				return err
			}
			defer a.jobs.Close()

			id := uuid.NewString()
			p := platform.Classify(rawURL)
			meta := a.metadata.Fetch(cmd.Context(), rawURL, p)
			if err := records.Create(cmd.Context(), &recipes.Record{
				ID:         id,
				UserID:     cliUserID,
				Title:      meta.Title,
				SourceType: string(p.SourceType()),
				SourceURL:  rawURL,
				SourceName: meta.SourceName,
				ImageURL:   meta.ImageURL,
				Status:     recipes.StatusImporting,
			}); err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			a.jobs.Create(id, cliUserID)
			sub := a.jobs.Subscribe(id, func(event string, data any) {
				if ev, ok := data.(jobs.ProgressEvent); ok && event == common.EventProgress {
					fmt.Fprintf(errOut, "[%s] %s\n", ev.Stage, ev.Message)
				}
			})
			defer a.jobs.Unsubscribe(sub)

			_ = a.worker.Process(cmd.Context(), pipeline.WorkItem{RecipeID: id, URL: rawURL, Platform: p})
			job, ok := a.jobs.Get(id)
			if ok && job.Status == recipes.StatusFailed {
				return fmt.Errorf("extraction failed: %s", job.ErrorReason)
			}
			rec, err := records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			fmt.Fprintf(out, "%s (%s, %s)\n\n", rec.Title, p, rec.SourceName)
			fmt.Fprintln(out, renderIngredients(rec.Ingredients))
			fmt.Fprintln(out, renderSteps(rec.Steps))
			if len(rec.Tags) > 0 {
				fmt.Fprintf(out, "tags: %s\n", strings.Join(rec.Tags, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored record as JSON")
	return cmd
}

func renderIngredients(items []recipes.Ingredient) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.Quantity, it.Unit, it.Text, string(it.Category)})
	}
	return renderTable([]string{"Qty", "Unit", "Ingredient", "Category"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
}

func renderSteps(steps []string) string {
	rows := make([][]string, 0, len(steps))
	for i, s := range steps {
		rows = append(rows, []string{strconv.Itoa(i + 1), s})
	}
	return renderTable([]string{"#", "Step"}, rows, []columnAlignment{alignRight, alignLeft})
}
