package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/osi4iot/hookhost/internal/config"
)

// ConfigFileName is the canonical workspace configuration file. A YAML
// variant is also accepted at each search location.
const ConfigFileName = "hooks.json"

// searchPaths returns candidate config files in precedence order, lowest
// first. Later files merge over earlier ones.
func searchPaths(workspaceRoot string, customPaths ...string) []string {
	paths := []string{
		filepath.Join(configDir(), "hookhost", "hooks.json"),
		filepath.Join(configDir(), "hookhost", "hooks.yml"),
		filepath.Join(workspaceRoot, "hooks.json"),
		filepath.Join(workspaceRoot, "hooks.yml"),
	}
	return append(paths, customPaths...)
}

// configDir returns the user configuration directory following the XDG Base
// Directory specification.
func configDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return xdgConfig
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

// LoadConfig loads, validates, and merges hook configuration for a
// workspace. Missing files are not an error. A file that fails validation
// is excluded as a whole (fail-closed) and reported through the returned
// issues; the remaining files still load. The error return is reserved for
// I/O failures on files that do exist.
func LoadConfig(workspaceRoot string, customPaths ...string) (*HooksConfiguration, []ValidationIssue, error) {
	merged := EmptyConfiguration()
	var issues []ValidationIssue

	for _, path := range searchPaths(workspaceRoot, customPaths...) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, issues, fmt.Errorf("reading %s: %w", path, err)
		}

		substituter := &config.EnvSubstituter{}
		substituted, err := substituter.SubstituteEnvVars(string(content))
		if err != nil {
			issues = append(issues, ValidationIssue{
				File:     path,
				Path:     "",
				Message:  err.Error(),
				Severity: SeverityError,
			})
			continue
		}

		raw, err := parseRaw([]byte(substituted))
		if err != nil {
			issues = append(issues, ValidationIssue{
				File:     path,
				Path:     "",
				Message:  fmt.Sprintf("parsing: %v", err),
				Severity: SeverityError,
			})
			continue
		}

		if errs := validateRaw(path, raw); len(errs) > 0 {
			issues = append(issues, errs...)
			continue
		}

		cfg, warnings := remap(path, raw)
		issues = append(issues, warnings...)
		mergeConfigurations(merged, cfg)
	}

	return merged, issues, nil
}

// parseRaw decodes one configuration document into its raw ordered form.
// Both YAML and JSON are handled by the YAML decoder (JSON documents are
// valid YAML); the node API is used so the declaration order of event keys
// survives, which the remap stage's determinism guarantee depends on.
func parseRaw(data []byte) (*rawConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	raw := &rawConfig{}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return raw, nil // empty document
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "version":
			if err := value.Decode(&raw.Version); err != nil {
				return nil, fmt.Errorf("version: %w", err)
			}
		case "hooks":
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("hooks must be a mapping of event name to matcher list")
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				eventKey, matcherList := value.Content[j], value.Content[j+1]
				var matchers []HookMatcher
				if err := matcherList.Decode(&matchers); err != nil {
					return nil, fmt.Errorf("hooks.%s: %w", eventKey.Value, err)
				}
				raw.Entries = append(raw.Entries, rawEntry{
					Event:    eventKey.Value,
					Matchers: matchers,
				})
			}
		default:
			return nil, fmt.Errorf("unknown top-level key %q", key.Value)
		}
	}

	return raw, nil
}
