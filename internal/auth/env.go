// Package auth resolves the environment variables a spawned subprocess must
// see for the current billing/auth state. Resolution is a pure decision:
// nothing here reads or mutates the process environment; the launcher that
// owns the subprocess applies the result.
package auth

// Environment variables managed by the resolver. A resolution never sets
// and deletes the same variable.
const (
	EnvBaseURL    = "ANTHROPIC_BASE_URL"
	EnvAPIKey     = "ANTHROPIC_API_KEY"
	EnvOAuthToken = "CLAUDE_CODE_OAUTH_TOKEN"
)

// placeholderAPIKey is used when a custom base URL is configured without a
// key. Many custom/local endpoints accept any non-empty value.
const placeholderAPIKey = "dummy"

// BillingType describes how API usage is paid for.
type BillingType string

const (
	BillingAPIKey  BillingType = "api_key"
	BillingOAuth   BillingType = "oauth"
	BillingBedrock BillingType = "bedrock"
	BillingVertex  BillingType = "vertex"
	BillingFoundry BillingType = "foundry"
)

// managed reports whether the platform supplies its own credentials
// transparently, with no environment override from us.
func (t BillingType) managed() bool {
	return t == BillingBedrock || t == BillingVertex || t == BillingFoundry
}

// Billing is the active billing configuration.
type Billing struct {
	Type       BillingType
	APIKey     string
	OAuthToken string
}

// State is the resolver input: billing configuration plus an optional
// custom API endpoint.
type State struct {
	Billing       Billing
	CustomBaseURL string
}

// Resolution lists the variables to set and to delete. Err is a plain
// string because absent credentials are an expected steady state, not an
// exceptional one.
type Resolution struct {
	Set    map[string]string
	Delete []string
	Err    string
}

// ResolveEnv maps the auth state to its subprocess environment. First
// matching rule wins:
//
//  1. platform-managed billing (bedrock/vertex/foundry): no override;
//  2. custom base URL: base URL + API key (placeholder if none), OAuth
//     token deleted — custom endpoints and OAuth are mutually exclusive;
//  3. OAuth billing with a token: token set, key and base URL deleted;
//  4. an API key: key set, token and base URL deleted;
//  5. otherwise: no authentication configured.
func ResolveEnv(state State) Resolution {
	if state.Billing.Type.managed() {
		return Resolution{Set: map[string]string{}}
	}

	if state.CustomBaseURL != "" {
		apiKey := state.Billing.APIKey
		if apiKey == "" {
			apiKey = placeholderAPIKey
		}
		return Resolution{
			Set: map[string]string{
				EnvBaseURL: state.CustomBaseURL,
				EnvAPIKey:  apiKey,
			},
			Delete: []string{EnvOAuthToken},
		}
	}

	if state.Billing.Type == BillingOAuth && state.Billing.OAuthToken != "" {
		return Resolution{
			Set:    map[string]string{EnvOAuthToken: state.Billing.OAuthToken},
			Delete: []string{EnvAPIKey, EnvBaseURL},
		}
	}

	if state.Billing.APIKey != "" {
		return Resolution{
			Set:    map[string]string{EnvAPIKey: state.Billing.APIKey},
			Delete: []string{EnvOAuthToken, EnvBaseURL},
		}
	}

	return Resolution{Set: map[string]string{}, Err: "No authentication configured"}
}
