package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "hookhost",
	Short: "Configuration-driven hook dispatcher for agent sessions",
	Long: `HookHost routes agent session lifecycle events and wall-clock schedules
to operator-configured hooks.

Hooks are declared in hooks.json (or hooks.yml) in the workspace root and
can run a shell command or send a prompt to the model.

Examples:
  # List the hooks configured for the current workspace
  hookhost hooks list

  # Validate configuration, including files merged from the XDG config dir
  hookhost hooks validate

  # Generate a starter hooks.yml
  hookhost hooks init

  # Show the subprocess environment for the current auth state
  hookhost auth env --billing api_key --api-key sk-ant-...`,
}

// GetRootCommand returns the root command for the given build version.
func GetRootCommand(version string) *cobra.Command {
	rootCmd.Version = version
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("workspace", ".", "workspace root containing hooks.json")
	flags.StringSlice("hooks-file", nil, "extra hooks configuration files (highest precedence)")

	viper.BindPFlag("workspace", flags.Lookup("workspace"))
	viper.BindPFlag("hooks-file", flags.Lookup("hooks-file"))
	viper.SetEnvPrefix("HOOKHOST")
	viper.AutomaticEnv()
}
