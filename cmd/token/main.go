// Command token mints bearer tokens for operators and local testing. Account
// registration and login live outside this service; this tool signs with the
// same secret the API verifies with.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
	tokenSecret  string
	tokenIssuer  string
)

var rootCmd = &cobra.Command{
	Use:          "token",
	Short:        "Mint an almsbox bearer token",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("--secret or JWT_SECRET is required")
		}

		role := auth.Role(tokenRole)
		if role != auth.RoleUser && role != auth.RoleAdmin {
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		subject := uuid.New()

		if tokenSubject != "" {
			parsed, err := uuid.Parse(tokenSubject)
			if err != nil {
				return fmt.Errorf("invalid subject: %w", err)
			}

			subject = parsed
		}

		tok, err := auth.NewTokens(tokenSecret, tokenIssuer, tokenTTL).Issue(auth.Identity{Subject: subject, Role: role})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), "subject:", subject)
		fmt.Fprintln(cmd.OutOrStdout(), tok)

		return nil
	},
}

func init() {
	_ = godotenv.Load()

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "almsbox"
	}

	rootCmd.Flags().StringVar(&tokenSubject, "subject", "", "account id (random when empty)")
	rootCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleUser), "user or admin")
	rootCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	rootCmd.Flags().StringVar(&tokenIssuer, "issuer", issuer, "token issuer")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
