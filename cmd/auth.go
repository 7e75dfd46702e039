package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/osi4iot/hookhost/internal/auth"
)

var (
	authBilling    string
	authAPIKey     string
	authOAuthToken string
	authBaseURL    string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication utilities",
}

var authEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Resolve subprocess environment for an auth state",
	Long: `Prints the environment variable changes a subprocess launcher must apply
for the given billing/auth state, as shell export and unset lines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		state := auth.State{
			Billing: auth.Billing{
				Type:       auth.BillingType(authBilling),
				APIKey:     authAPIKey,
				OAuthToken: authOAuthToken,
			},
			CustomBaseURL: authBaseURL,
		}

		resolution := auth.ResolveEnv(state)
		if resolution.Err != "" {
			return fmt.Errorf("%s", resolution.Err)
		}

		names := make([]string, 0, len(resolution.Set))
		for name := range resolution.Set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("export %s=%q\n", name, resolution.Set[name])
		}
		for _, name := range resolution.Delete {
			fmt.Printf("unset %s\n", name)
		}
		return nil
	},
}

func init() {
	authEnvCmd.Flags().StringVar(&authBilling, "billing", string(auth.BillingAPIKey), "billing mode: api_key, oauth, bedrock, vertex, foundry")
	authEnvCmd.Flags().StringVar(&authAPIKey, "api-key", "", "API key")
	authEnvCmd.Flags().StringVar(&authOAuthToken, "oauth-token", "", "OAuth token")
	authEnvCmd.Flags().StringVar(&authBaseURL, "base-url", "", "custom API base URL")

	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authEnvCmd)
}
