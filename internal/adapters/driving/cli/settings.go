package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/adapters/driven/config"
	"github.com/tripsync/tripctx/internal/adapters/driven/config/file"
	"github.com/tripsync/tripctx/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and edit configuration",
	Long: `View the resolved configuration and edit the config file.

Keys are dotted paths such as cache.ttl or usage.limits.free. Environment
variables (TRIPCTX_CACHE_TTL) override the file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved settings",
	RunE:  runSettingsShow,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a value stored in the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a value in the config file",
	Long: `Store a value in the config file. The value is read as a TOML literal
(8, 0.5, true, ["chunker", "tokencount"]) and kept as a string otherwise.
The change is rejected if the resulting configuration is invalid.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsUnset,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsGetCmd, settingsSetCmd, settingsUnsetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func openConfig() (*file.ConfigStore, error) {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return store, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	loadDotEnv()
	s, loadErr := config.LoadSettings(store, os.Getenv)

	cmd.Printf("Config file: %s\n\n", store.Path())

	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", s.Storage.Backend)
	if s.Storage.PostgresURL != "" {
		cmd.Printf("  Postgres: %s\n", mask(s.Storage.PostgresURL))
	}
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", s.Embedding.Provider.Description())
	if s.Embedding.Model != "" {
		cmd.Printf("  Model: %s\n", s.Embedding.Model)
	}
	if s.Embedding.Provider.RequiresAPIKey() {
		key := "(not set)"
		if s.Embedding.APIKey != "" {
			key = mask(s.Embedding.APIKey)
		}
		cmd.Printf("  API Key: %s\n", key)
	}
	cmd.Println()

	cmd.Println("[Ingestion]")
	cmd.Printf("  Chunks: %d chars, %d overlap\n", s.Ingestion.ChunkSize, s.Ingestion.ChunkOverlap)
	processors := "default"
	if len(s.Ingestion.Processors) > 0 {
		processors = strings.Join(s.Ingestion.Processors, ", ")
	}
	cmd.Printf("  Processors: %s\n", processors)
	cmd.Printf("  Fetch links: %t\n", s.Ingestion.FetchLinks)
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Default k: %d\n", s.Retrieval.DefaultK)
	cmd.Printf("  Weights: semantic %.2f, lexical %.2f\n", s.Retrieval.SemanticWeight, s.Retrieval.LexicalWeight)
	if s.Retrieval.CandidateLimit > 0 {
		cmd.Printf("  Candidate limit: %d\n", s.Retrieval.CandidateLimit)
	}
	cmd.Println()

	cmd.Println("[Usage]")
	cmd.Printf("  Timezone: %s\n", s.Usage.Timezone)
	tiers := make([]string, 0, len(s.Usage.Limits))
	for tier, limit := range s.Usage.Limits {
		tiers = append(tiers, fmt.Sprintf("%s=%d", tier, limit))
	}
	sort.Strings(tiers)
	cmd.Printf("  Daily limits: %s\n", strings.Join(tiers, ", "))
	if len(s.Usage.Tiers) > 0 {
		users := make([]string, 0, len(s.Usage.Tiers))
		for user, tier := range s.Usage.Tiers {
			users = append(users, fmt.Sprintf("%s=%s", user, tier))
		}
		sort.Strings(users)
		cmd.Printf("  Assigned tiers: %s\n", strings.Join(users, ", "))
	}
	cmd.Println()

	if loadErr != nil {
		cmd.Printf("Warning: %v\n", loadErr)
		return nil
	}
	cmd.Println("Configuration is valid.")
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	v, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("%w: %s is not set in %s", domain.ErrNotFound, args[0], store.Path())
	}
	if isSecret(args[0]) {
		v = mask(fmt.Sprint(v))
	}
	cmd.Println(v)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	key, value := args[0], parseValue(args[1])

	prev, existed := store.Get(key)
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	if _, err := config.LoadSettings(store, nil); err != nil {
		restore := store.Unset(key)
		if existed {
			restore = store.Set(key, prev)
		}
		if restore != nil {
			return fmt.Errorf("%w (restoring %s also failed: %v)", err, key, restore)
		}
		return err
	}

	cmd.Printf("%s updated in %s\n", key, store.Path())
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	if err := store.Unset(args[0]); err != nil {
		return fmt.Errorf("removing %s: %w", args[0], err)
	}
	cmd.Printf("%s removed from %s\n", args[0], store.Path())
	return nil
}

// parseValue reads raw as a TOML literal, falling back to a plain string.
func parseValue(raw string) any {
	var doc map[string]any
	if err := toml.Unmarshal([]byte("v = "+raw), &doc); err == nil {
		return doc["v"]
	}
	return raw
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "token") || strings.HasSuffix(key, "postgres_url")
}

// mask keeps the first and last four characters of long secrets.
func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
