package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"aisum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage aisum configuration",
	Long:  "View, create and check the aisum configuration file.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (secrets masked)",
	Run:   runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as JSON.

Examples:
  aisum config init                 # ~/.aisum/aisum.json
  aisum config init ./aisum.json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configuration is usable",
	Run:   runConfigValidate,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Run:   runConfigEnv,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatal("%v", err)
	}
	shown := *cfg
	shown.Jira.Token = mask(cfg.Jira.Token)
	shown.GenAI.Key = mask(cfg.GenAI.Key)
	shown.Server.StaticToken = mask(cfg.Server.StaticToken)

	switch currentFormat() {
	case FormatYAML:
		printYAML(shown)
	default:
		printJSON(shown)
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fatal("%v", err)
		}
		path = filepath.Join(home, ".aisum", "aisum.json")
	}
	if _, err := os.Stat(path); err == nil {
		fatal("%s already exists", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		fatal("writing %s: %v", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set jira.url and jira.token (or JIRA_URL and JIRA_TOKEN) before running.")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatal("%v", err)
	}
	problems := 0
	for _, check := range []struct {
		name string
		fn   func() error
	}{
		{"tracker", cfg.Validate},
		{"generation", cfg.ValidateGenAI},
	} {
		if err := check.fn(); err != nil {
			problems++
			fmt.Printf("%s %s: %v\n", warnColor.Sprint("✗"), check.name, err)
			continue
		}
		fmt.Printf("%s %s\n", okColor.Sprint("✓"), check.name)
	}
	if problems > 0 {
		os.Exit(1)
	}
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	aliases := config.EnvAliases()
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("Every key can be set as AISUM_<SECTION>_<KEY>, e.g. AISUM_SERVER_PORT.")
	fmt.Println("These legacy names are also read:")
	fmt.Println()
	for _, k := range keys {
		fmt.Printf("  %-28s %s\n", aliases[k], dimColor.Sprint(k))
	}
	fmt.Println()
	fmt.Println("ALLOWED_PROJECTS is a comma-separated list, e.g. PROJ,OPS.")
}
