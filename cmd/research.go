package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/research-infograph/internal/app"
	"github.com/JakeFAU/research-infograph/internal/research"
)

func newResearchCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Run one research job in the foreground and print its result",
		Long: `research creates a session for --prompt, runs search, ingest and
rendering inline, and prints the job result as JSON.`,
		RunE: withApp(func(cmd *cobra.Command, appInstance *app.App) error {
			cleaned, err := research.ValidatePrompt(prompt)
			if err != nil {
				return err
			}
			session, err := appInstance.Sessions.CreateSession(cmd.Context(), cleaned)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			result, err := appInstance.Runner.Run(cmd.Context(), session.ID)
			if err != nil {
				return fmt.Errorf("run research: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "research prompt (3 to 4000 characters)")
	return cmd
}
