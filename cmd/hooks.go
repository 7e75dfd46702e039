package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/osi4iot/hookhost/internal/hooks"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage workspace hooks",
	Long:  "Commands for inspecting and validating the hooks configuration",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured hooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, issues, err := loadWorkspaceHooks()
		if err != nil {
			return fmt.Errorf("loading hooks config: %w", err)
		}
		printIssues(issues)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tMATCHER\tCRON\tTYPE\tACTION\tTIMEOUT")

		for _, event := range hooks.ValidEvents() {
			for _, matcher := range config.Hooks[event] {
				for _, def := range matcher.Hooks {
					action := def.Command
					timeout := "-"
					if def.Type == hooks.HookTypePrompt {
						action = def.Prompt
					} else {
						timeout = "60s"
						if def.Timeout > 0 {
							timeout = fmt.Sprintf("%ds", def.Timeout)
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						event, matcher.Matcher, matcher.Cron, def.Type, action, timeout)
				}
			}
		}

		return w.Flush()
	},
}

var hooksValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate hooks configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, issues, err := loadWorkspaceHooks()
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		printIssues(issues)

		for _, issue := range issues {
			if issue.Severity == hooks.SeverityError {
				return fmt.Errorf("validation failed")
			}
		}

		fmt.Println("✓ Hooks configuration is valid")
		return nil
	},
}

var hooksInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example hooks configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled := false
		example := struct {
			Version int                                     `yaml:"version"`
			Hooks   map[hooks.HookEvent][]hooks.HookMatcher `yaml:"hooks"`
		}{
			Version: 1,
			Hooks: map[hooks.HookEvent][]hooks.HookMatcher{
				// StatusStateChange - fires when a session's status changes
				hooks.StatusStateChange: {
					{
						Matcher: "done",
						Hooks: []hooks.HookDefinition{
							{
								Type:    hooks.HookTypeCommand,
								Command: `jq -r '"[status] " + .sessionId + ": " + .oldState + " -> " + .newState' >> .hookhost.log`,
								Timeout: 5,
							},
						},
					},
				},
				// Stop - fires when the main agent finishes responding
				hooks.Stop: {
					{
						Hooks: []hooks.HookDefinition{
							{
								Type:   hooks.HookTypePrompt,
								Prompt: "Summarize what changed in this session in one sentence.",
							},
						},
					},
				},
				// A schedule-only matcher: runs daily, never on event emission
				hooks.Schedule: {
					{
						Cron:     "0 9 * * *",
						Timezone: "UTC",
						Enabled:  &enabled,
						Hooks: []hooks.HookDefinition{
							{
								Type:    hooks.HookTypeCommand,
								Command: "echo daily check-in >> .hookhost.log",
							},
						},
					},
				},
			},
		}

		data, err := yaml.Marshal(example)
		if err != nil {
			return fmt.Errorf("marshaling example: %w", err)
		}

		path := filepath.Join(viper.GetString("workspace"), "hooks.yml")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing example: %w", err)
		}

		fmt.Printf("Created %s with example configuration\n", path)
		return nil
	},
}

func loadWorkspaceHooks() (*hooks.HooksConfiguration, []hooks.ValidationIssue, error) {
	return hooks.LoadConfig(viper.GetString("workspace"), viper.GetStringSlice("hooks-file")...)
}

func printIssues(issues []hooks.ValidationIssue) {
	for _, issue := range issues {
		fmt.Fprintln(os.Stderr, issue)
	}
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.AddCommand(hooksListCmd)
	hooksCmd.AddCommand(hooksValidateCmd)
	hooksCmd.AddCommand(hooksInitCmd)
}
