package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"kanban-api/api"
	"kanban-api/config"
)

var tokenFlags struct {
	count  int
	prefix string
	start  int
	output string
	ttl    time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Sign development tokens with the hs256 secret",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenFlags.count < 1 {
			return errors.New("count must be at least 1")
		}
		if tokenFlags.start < 1 {
			return errors.New("start index must be at least 1")
		}
		if len(args) > 0 && tokenFlags.count > 1 {
			return errors.New("explicit user ID cannot be provided when generating multiple tokens")
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if !strings.EqualFold(cfg.Auth.Mode, api.AuthModeHS256) {
			return errors.New("tokens can only be signed in hs256 mode")
		}

		tokens := make([]string, tokenFlags.count)
		for i := range tokens {
			userID := tokenFlags.prefix
			switch {
			case len(args) > 0:
				userID = args[0]
			case tokenFlags.count > 1:
				userID = fmt.Sprintf("%s-%d", tokenFlags.prefix, tokenFlags.start+i)
			}
			if tokens[i], err = signToken(cfg.Auth, userID, tokenFlags.ttl); err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
		}

		if tokenFlags.output != "" {
			if err := writeTokens(tokenFlags.output, tokens); err != nil {
				return fmt.Errorf("write tokens: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), tokens[0])
		return nil
	},
}

func init() {
	tokenCmd.Flags().IntVar(&tokenFlags.count, "count", 1, "number of tokens to generate")
	tokenCmd.Flags().StringVar(&tokenFlags.prefix, "prefix", "dev-user", "prefix for generated user IDs")
	tokenCmd.Flags().IntVar(&tokenFlags.start, "start", 1, "starting index when count > 1")
	tokenCmd.Flags().StringVar(&tokenFlags.output, "output", "", "file to write all tokens to as a JSON array")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", time.Hour, "token lifetime")
}

func signToken(cfg config.AuthConfig, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	if iss := cfg.Issuer(); iss != "" {
		claims["iss"] = iss
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
