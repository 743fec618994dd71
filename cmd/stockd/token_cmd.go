package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/stockd/internal/auth"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the MCP bearer token derived from the configured credentials",
		Example: strings.TrimSpace(`
# Default admin/admin token
stockd token

# Sign a one-hour JWT for an agent (requires --jwt-secret on the server too)
STOCKD_JWT_SECRET=s3cr3t stockd token jwt --subject agent --ttl 1h
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(viper.GetString("bearer-token"))
			if token == "" {
				token = auth.DefaultToken(viper.GetString("username"), viper.GetString("password"))
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.AddCommand(newTokenJWTCommand())
	return cmd
}

func newTokenJWTCommand() *cobra.Command {
	var subject, issuer, secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Sign an HS256 JWT accepted by the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = viper.GetString("jwt-secret")
			}
			if issuer == "" {
				issuer = strings.TrimSpace(viper.GetString("jwt-issuer"))
			}
			token, err := signJWT(secret, subject, issuer, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (defaults to --jwt-issuer / STOCKD_JWT_ISSUER)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to STOCKD_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime (0 issues a token without expiry)")
	return cmd
}

func signJWT(secret, subject, issuer string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret required (--secret or STOCKD_JWT_SECRET)")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("--subject required")
	}
	if ttl < 0 {
		return "", fmt.Errorf("--ttl must not be negative")
	}
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
