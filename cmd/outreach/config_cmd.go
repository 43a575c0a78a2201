package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/outreach/internal/config"
	"github.com/kalambet/outreach/internal/google"
)

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

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> [value]",
	Short: "Store an API key or client secret (reads stdin when no value is given)",
	Long:  "Store a secret in the platform secret store. Keys: " + strings.Join(config.SecretKeys(), ", "),
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading secret: %w", err)
			}
			value = strings.TrimSpace(line)
		}
		if value == "" {
			return fmt.Errorf("secret value is empty")
		}
		if err := config.SetSecret(config.NewKeychain(), key, value); err != nil {
			return err
		}
		printSuccess("Stored %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect external accounts",
}

var authGoogleCmd = &cobra.Command{
	Use:   "google",
	Short: "Authorize Gmail and Sheets access",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
			return fmt.Errorf("google.client_id and google.client_secret must be configured first")
		}
		code, _ := cmd.Flags().GetString("code")

		oauthCfg := google.NewOAuthConfig(google.OAuthSettings{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if code == "" {
			printStep("Open this URL and approve access:")
			fmt.Fprintln(cmd.OutOrStdout(), google.AuthURL(oauthCfg, uuid.New().String()))
			printStep("Paste the authorization code:")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			code = strings.TrimSpace(line)
		}
		if code == "" {
			return fmt.Errorf("authorization code is required")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		path := google.TokenPath(cfg.Storage.DataDir)
		if _, err := google.Exchange(ctx, oauthCfg, code, path); err != nil {
			return err
		}
		printSuccess("Google account connected, token saved to %s", path)
		printWarning("Restart the server for the new token to take effect")
		return nil
	},
}

func init() {
	authGoogleCmd.Flags().String("code", "", "authorization code (skips the prompt)")
	authCmd.AddCommand(authGoogleCmd)
}
