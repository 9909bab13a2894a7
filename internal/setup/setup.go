// Package setup registers the MCP server with desktop MCP clients that read a
// claude_desktop_config.json style file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// ServerName is the key under which the server is registered.
const ServerName = "clinical-trial-matcher"

// forwardedEnv lists variables copied into the client entry when set, so the
// client launches the server with the same registry and narrative settings.
// Secrets are never forwarded; the client config is plain text.
var forwardedEnv = []string{
	"TRIALMATCH_REGISTRY_BASE_URL",
	"TRIALMATCH_CACHE_REDIS_URL",
	"TRIALMATCH_NARRATIVE_MODEL",
	"TRIALMATCH_LOGGING_LEVEL",
}

// SecretEnv names the narrative API key variable, which belongs in the server
// config file or the client's own environment rather than the client config.
const SecretEnv = "TRIALMATCH_NARRATIVE_API_KEY"

// DesktopConfig is the client configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// Other preserves unrelated top-level keys across rewrites.
	Other map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server entry.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// RegisterOptions controls Register.
type RegisterOptions struct {
	ConfigPath string // defaults to DesktopConfigPath()
	BinaryPath string // defaults to the running executable
	ConfigFile string // optional --config argument passed to the server
}

// Status summarizes the registration state.
type Status struct {
	ConfigPath string
	Registered bool
	Command    string
	Issues     []string
}

// DesktopConfigPath returns the platform location of the client config file.
func DesktopConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	}
}

// LoadDesktopConfig reads the client config. A missing file yields an empty config.
func LoadDesktopConfig(path string) (*DesktopConfig, error) {
	config := &DesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		Other:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.Other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.Other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.Other, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}
	return config, nil
}

// SaveDesktopConfig writes the client config, creating its directory.
func SaveDesktopConfig(path string, config *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(config.Other)+1)
	for k, v := range config.Other {
		out[k] = v
	}
	out["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry and returns the file written.
func Register(opts RegisterOptions) (string, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}
	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return "", fmt.Errorf("could not determine server binary: %w", err)
		}
	}

	config, err := LoadDesktopConfig(path)
	if err != nil {
		return "", err
	}

	entry := MCPServerConfig{Command: binary}
	if opts.ConfigFile != "" {
		entry.Args = []string{"--config", opts.ConfigFile}
	}
	for _, key := range forwardedEnv {
		if v := os.Getenv(key); v != "" {
			if entry.Env == nil {
				entry.Env = make(map[string]string)
			}
			entry.Env[key] = v
		}
	}
	config.MCPServers[ServerName] = entry

	return path, SaveDesktopConfig(path, config)
}

// GetStatus reports whether the server is registered and runnable.
func GetStatus(configPath string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	status := &Status{ConfigPath: path}

	config, err := LoadDesktopConfig(path)
	if err != nil {
		return nil, err
	}
	entry, ok := config.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "server is not registered")
		return status, nil
	}

	status.Registered = true
	status.Command = entry.Command
	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case info.Mode()&0o111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}
	if _, ok := entry.Env[SecretEnv]; ok {
		status.Issues = append(status.Issues, fmt.Sprintf("client config stores %s in plain text; re-run register to remove it", SecretEnv))
	}
	sort.Strings(status.Issues)
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DesktopConfigPath()
}
