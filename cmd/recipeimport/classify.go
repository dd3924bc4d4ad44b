package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/recipeimport/internal/platform"
)

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>",
		Short: "Print the platform and source type of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := platform.Classify(args[0])
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "platform: %s\nsource_type: %s\n", p, p.SourceType())
			return err
		},
	}
}
