package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"procure-agent/model"
	"procure-agent/service"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify a question and print the intent, reasoning and composed query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfgPath)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		d := c.decisions.Decide(cmd.Context(), service.ClassifyRequest{
			Text:     text,
			RiskMode: c.settings.Snapshot().RiskMode,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(model.IntentRecognitionResponse{
			Intent:    d.Intent(),
			Path:      string(d.Classification.Path),
			Steps:     d.Steps,
			Query:     d.Query,
			Reasoning: d.Reasoning,
		})
	},
}
