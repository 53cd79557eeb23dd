package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/api"
	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/cvtext"
	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/storage"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- prompt ---

type promptResult struct {
	Prompt string        `json:"prompt"`
	Meta   pipeline.Meta `json:"meta"`
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the assistant system prompt",
	Long: `Print the system prompt the assistant answers with.

By default the prompt is built locally from the content service. With
--server the running folio server is asked instead (needs FOLIO_ADMIN_TOKEN).

Examples:
  folio prompt
  folio prompt --meta
  folio prompt --server --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("server")
		refresh, _ := cmd.Flags().GetBool("refresh")
		showMeta, _ := cmd.Flags().GetBool("meta")

		var res promptResult
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			if res, err = fetchPrompt(cmd.Context(), client, refresh); err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res.Prompt, res.Meta = newServices(cfg).prompt.SystemPrompt(cmd.Context())
		}

		if showMeta {
			return printJSON(res)
		}
		fmt.Println(res.Prompt)
		printStatus("Source", "%s", res.Meta.Source)
		printStatus("Estimated tokens", "%d", res.Meta.Tokens)
		printStatus("CV included", "%t", res.Meta.CVIncluded)
		if res.Meta.Reason != "" {
			printWarning("fallback: %s", res.Meta.Reason)
		}
		for entity, reason := range res.Meta.Degraded {
			printWarning("%s degraded: %s", entity, reason)
		}
		return nil
	},
}

func fetchPrompt(ctx context.Context, client *apiClient, refresh bool) (promptResult, error) {
	if refresh {
		resp, err := client.post(ctx, "/api/prompt/refresh", nil)
		if err != nil {
			return promptResult{}, err
		}
		var meta pipeline.Meta
		if err := decodeJSON(resp, &meta); err != nil {
			return promptResult{}, err
		}
	}
	resp, err := client.get(ctx, "/api/prompt")
	if err != nil {
		return promptResult{}, err
	}
	var res promptResult
	if err := decodeJSON(resp, &res); err != nil {
		return promptResult{}, err
	}
	return res, nil
}

func init() {
	promptCmd.Flags().Bool("server", false, "ask the running server instead of building locally")
	promptCmd.Flags().Bool("refresh", false, "drop the server's cached prompt first (with --server)")
	promptCmd.Flags().Bool("meta", false, "print prompt and build metadata as JSON")
}

// --- content ---

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Fetch and print the normalized portfolio content",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc := newServices(cfg)
		if !svc.cms.Configured() {
			printWarning("content service not configured, showing defaults")
		}

		bundle := svc.content.Load(cmd.Context())
		if err := bundle.Err(); err != nil {
			return err
		}
		for entity, reason := range bundle.Degraded() {
			if entity != "profile" || svc.cms.Configured() {
				printWarning("%s degraded: %s", entity, reason)
			}
		}

		summary, _ := cmd.Flags().GetBool("summary")
		if !summary {
			return printJSON(map[string]any{
				"profile":          bundle.Profile.Value,
				"experiences":      bundle.Experiences.Value,
				"workProjects":     bundle.WorkProjects.Value,
				"personalProjects": bundle.PersonalProjects.Value,
				"contactMethods":   bundle.ContactMethods.Value,
				"degraded":         bundle.Degraded(),
			})
		}

		p := bundle.Profile.Value
		printStatus("Name", "%s", p.Name)
		printStatus("Title", "%s", p.Title)
		printStatus("Skills", "%d", len(p.Skills))
		printStatus("Experiences", "%d", len(bundle.Experiences.Value))
		printStatus("Work projects", "%d", len(bundle.WorkProjects.Value))
		printStatus("Personal projects", "%d", len(bundle.PersonalProjects.Value))
		printStatus("Contact methods", "%d", len(bundle.ContactMethods.Value))
		if p.CVURL != nil {
			printStatus("CV", "%s", *p.CVURL)
		}
		return nil
	},
}

func init() {
	contentCmd.Flags().Bool("summary", false, "print counts instead of the full JSON")
}

// --- cv ---

var cvCmd = &cobra.Command{
	Use:   "cv [url]",
	Short: "Extract plain text from a CV PDF",
	Long: `Extract plain text from a CV PDF. Without a URL the CV linked from the
profile is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc := newServices(cfg)

		url := ""
		if len(args) == 1 {
			url = args[0]
		} else {
			bundle := svc.content.Load(cmd.Context())
			if err := bundle.Err(); err != nil {
				return err
			}
			if bundle.Profile.Value.CVURL == nil {
				return errors.New("the profile has no CV; pass a URL")
			}
			url = *bundle.Profile.Value.CVURL
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		text := cvtext.New(cvtext.Options{Timeout: timeout}).Extract(cmd.Context(), url)
		if cvtext.IsSentinel(text) {
			return errors.New(text)
		}
		fmt.Println(text)
		printStatus("Characters", "%d", utf8.RuneCountInString(text))
		printStatus("Estimated tokens", "%d", composer.EstimateTokens(text))
		return nil
	},
}

func init() {
	cvCmd.Flags().Duration("timeout", cvtext.DefaultTimeout, "download and parse timeout")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect the relayed chat log",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []storage.Interaction
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			fmt.Println(formatInteraction(ix))
		}
		return nil
	},
}

func formatInteraction(ix storage.Interaction) string {
	return fmt.Sprintf("%s  %s  %s  %5dms  %s",
		colorize(colorCyan, shortID(ix.ID)),
		ix.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		httpStatus(ix.Status),
		ix.LatencyMs,
		truncate(ix.UserQuery, 80),
	)
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/interactions/"+args[0])
		if err != nil {
			return err
		}

		var interaction storage.Interaction
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}
		return printJSON(interaction)
	},
}

var interactionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize interactions over a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/interactions/stats?since="+since.String())
		if err != nil {
			return err
		}

		var stats storage.InteractionStats
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}
		printStatus("Window", "%s", since)
		printStatus("Total", "%d", stats.Total)
		printStatus("Failed", "%d", stats.Failed)
		printStatus("Avg latency", "%.0fms", stats.AvgLatencyMs)
		return nil
	},
}

var interactionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete interactions older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		confirm, _ := cmd.Flags().GetBool("confirm")
		if olderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		if !confirm {
			printWarning("This deletes interactions older than %s. Use --confirm to proceed.", olderThan)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := store.PruneInteractions(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		printSuccess("Deleted %d interactions", n)
		return nil
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window to summarize")
	interactionsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete interactions older than this")
	interactionsPruneCmd.Flags().Bool("confirm", false, "confirm deletion")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
	interactionsCmd.AddCommand(interactionsStatsCmd)
	interactionsCmd.AddCommand(interactionsPruneCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models offered by the LLM endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireLLM(); err != nil {
			return err
		}

		models, err := newServices(cfg).llm.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			name := m.ID
			if m.ID == cfg.LLM.Model {
				name = colorize(colorBold, m.ID+" (current)")
			}
			fmt.Println(name)
		}
		return nil
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve portfolio content and the assistant prompt over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc := newServices(cfg)
		deps := api.MCPDeps{
			Prompt:  svc.prompt,
			Content: svc.content,
			CV:      svc.cv,
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			slog.Warn("mcp: interaction log unavailable", "error", err)
		} else {
			defer store.Close()
			deps.Store = store
		}

		slog.Info("MCP server started (stdio transport)")
		stdio := server.NewStdioServer(api.NewMCPServer(deps))
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file. Valid keys: " +
		strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
