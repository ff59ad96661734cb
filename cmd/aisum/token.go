package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aisum/internal/auth"
	"aisum/internal/slogutil"
	"aisum/internal/storage"
)

var (
	tokenName        string
	tokenScopes      []string
	tokenExpires     string
	tokenRateLimit   int
	tokenShowRevoked bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens for the HTTP API",
	Long: `Create, list, and revoke bearer tokens for "aisum serve".

Tokens are stored in the state database (storage.path).

Examples:
  aisum token create --name "Dashboard" --scopes summarize
  aisum token list
  aisum token revoke aisum_tok_0123456789abcdef`,
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API token",
	Long: `Create a new API token. The secret is shown once.

Scopes:
  read       - health and read-only endpoints
  summarize  - generate summaries (includes read)
  admin      - everything

Examples:
  aisum token create --name "Dashboard" --scopes summarize
  aisum token create --name "Ops" --scopes admin --expires 30d --rate-limit 120`,
	Run: runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API tokens",
	Run:   runTokenList,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke an API token",
	Args:  cobra.ExactArgs(1),
	Run:   runTokenRevoke,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "Token name (required)")
	tokenCreateCmd.Flags().StringSliceVar(&tokenScopes, "scopes", nil, "Scopes: read, summarize, admin (required)")
	tokenCreateCmd.Flags().StringVar(&tokenExpires, "expires", "", "Lifetime (e.g. 30d, 12h)")
	tokenCreateCmd.Flags().IntVar(&tokenRateLimit, "rate-limit", 0, "Requests per minute (0 = server default)")
	_ = tokenCreateCmd.MarkFlagRequired("name")
	_ = tokenCreateCmd.MarkFlagRequired("scopes")

	tokenListCmd.Flags().BoolVar(&tokenShowRevoked, "show-revoked", false, "Include revoked tokens")

	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// mustGetState opens only the state database; the tracker is not needed.
func mustGetState() (*storage.DB, *auth.Manager, func()) {
	cfg, err := loadConfig()
	if err != nil {
		fatal("%v", err)
	}
	logger, closer, err := slogutil.Setup(cfg.Logging, os.Stderr, levelOverride())
	if err != nil {
		fatal("setting up logging: %v", err)
	}
	db, err := storage.Open(cfg.Storage.Path, logger.With("component", "storage"))
	if err != nil {
		fatal("opening state database: %v", err)
	}
	mgr, err := auth.NewManager(auth.ManagerConfig{Enabled: true}, db.Conn(), logger.With("component", "auth"))
	if err != nil {
		fatal("%v", err)
	}
	return db, mgr, func() {
		_ = db.Close()
		_ = closer.Close()
	}
}

func runTokenCreate(cmd *cobra.Command, args []string) {
	_, manager, done := mustGetState()
	defer done()

	var names []string
	for _, s := range tokenScopes {
		names = append(names, strings.ToLower(strings.TrimSpace(s)))
	}
	scopes, err := auth.ParseScopes(names)
	if err != nil {
		fatal("%v (valid: read, summarize, admin)", err)
	}

	var ttl time.Duration
	if tokenExpires != "" {
		if ttl, err = parseLifetime(tokenExpires); err != nil {
			fatal("invalid expiration '%s': %v", tokenExpires, err)
		}
	}
	var rateLimit *int
	if tokenRateLimit > 0 {
		rateLimit = &tokenRateLimit
	}

	tok, secret, err := manager.CreateToken(context.Background(), auth.CreateOptions{
		Name:      tokenName,
		Scopes:    scopes,
		RateLimit: rateLimit,
		TTL:       ttl,
		CreatedBy: os.Getenv("USER"),
	})
	if err != nil {
		fatal("creating token: %v", err)
	}

	emit(struct {
		auth.APIToken `yaml:",inline"`
		Token         string `json:"token" yaml:"token"`
	}{*tok, secret}, func() {
		fmt.Println("API Token Created:")
		fmt.Println()
		fmt.Printf("  ID:      %s\n", tok.ID)
		fmt.Printf("  Name:    %s\n", tok.Name)
		fmt.Printf("  Scopes:  %s\n", formatScopes(tok.Scopes))
		if tok.RateLimit != nil {
			fmt.Printf("  Rate:    %d/min\n", *tok.RateLimit)
		}
		if tok.ExpiresAt != nil {
			fmt.Printf("  Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Println()
		fmt.Printf("  Token:   %s\n", keyColor.Sprint(secret))
		fmt.Println()
		fmt.Println(warnColor.Sprint("Save this token now. It cannot be shown again."))
	})
}

func runTokenList(cmd *cobra.Command, args []string) {
	_, manager, done := mustGetState()
	defer done()

	tokens, err := manager.ListTokens(context.Background(), tokenShowRevoked)
	if err != nil {
		fatal("listing tokens: %v", err)
	}
	emit(tokens, func() {
		if len(tokens) == 0 {
			fmt.Println("No API tokens found.")
			return
		}
		fmt.Printf("%-28s %-20s %-16s %-12s %s\n", "ID", "NAME", "SCOPES", "LAST USED", "STATUS")
		for _, t := range tokens {
			lastUsed := "never"
			if t.LastUsedAt != nil {
				lastUsed = formatTimeAgo(*t.LastUsedAt)
			}
			status := okColor.Sprint("active")
			switch {
			case t.Revoked:
				status = warnColor.Sprint("revoked")
			case t.IsExpired(time.Now()):
				status = dimColor.Sprint("expired")
			}
			fmt.Printf("%-28s %-20s %-16s %-12s %s\n", t.ID, t.Name, formatScopes(t.Scopes), lastUsed, status)
		}
	})
}

func runTokenRevoke(cmd *cobra.Command, args []string) {
	_, manager, done := mustGetState()
	defer done()

	if err := manager.RevokeToken(context.Background(), args[0]); err != nil {
		fatal("revoking token: %v", err)
	}
	fmt.Printf("Token %s revoked.\n", args[0])
}

// parseLifetime accepts Go durations plus a "d" suffix for days.
func parseLifetime(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil || days <= 0 {
			return 0, fmt.Errorf("want a positive number of days")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

func formatScopes(scopes []auth.Scope) string {
	strs := make([]string, len(scopes))
	for i, s := range scopes {
		strs[i] = string(s)
	}
	return strings.Join(strs, ",")
}
