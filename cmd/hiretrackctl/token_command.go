package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/forgo/hiretrack/api/internal/bootstrap"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/pkg/jwt"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID  string
		email   string
		role    string
		keyPath string
		expMins int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := model.ParseUserRole(role)
			if !ok {
				return errors.Newf("unknown role %q", role)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jwtCfg := cfg.JWT
			if keyPath != "" {
				jwtCfg.PrivateKeyPath = keyPath
				jwtCfg.Secret = ""
			}
			if expMins > 0 {
				jwtCfg.ExpirationMins = expMins
			}

			signer, err := bootstrap.NewJWTService(jwtCfg)
			if err != nil {
				return errors.Wrap(err, "jwt signer (set JWT_SECRET or --key)")
			}

			token, err := signer.Sign(jwt.Claims{
				Subject: userID,
				UserID:  userID,
				Email:   email,
				Role:    string(parsed),
			})
			if err != nil {
				return errors.Wrap(err, "sign token")
			}

			expires := signer.GetExpiration()
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"access_token": token,
					"token_type":   "Bearer",
					"expires_in":   int(expires.Seconds()),
					"user_id":      userID,
					"email":        email,
					"role":         parsed,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"User ID", userID},
					{"Email", email},
					{"Role", string(parsed)},
					{"Expires", time.Now().Add(expires).UTC().Format(time.RFC3339)},
				},
				nil,
			))
			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "user:dev-recruiter", "User ID for the token")
	cmd.Flags().StringVar(&email, "email", "recruiter@hiretrack.dev", "Email for the token")
	cmd.Flags().StringVar(&role, "role", string(model.UserRoleRecruiter), "Role: candidate, recruiter or hiring_manager")
	cmd.Flags().StringVar(&keyPath, "key", "", "Path to a JWT private key (overrides JWT_SECRET)")
	cmd.Flags().IntVar(&expMins, "exp", 0, "Token expiration in minutes (defaults to JWT_EXPIRATION_MINS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
