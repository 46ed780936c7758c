package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
	"github.com/cityofaustin/moped-claimsx/internal/bootstrap"
	"github.com/cityofaustin/moped-claimsx/internal/logging"
	"github.com/cityofaustin/moped-claimsx/internal/settings"
)

type app struct {
	configPath string
	settings   *settings.Settings
	logger     *zap.Logger
	metrics    *claimsx.Metrics
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	s, err := settings.Load(a.configPath)
	if err != nil {
		return err
	}
	a.settings = s
	// Logs go to stdout in json by default; the CLI keeps them on console at warn.
	a.logger = logging.New("warn", "console")
	if s.Log.Level == "debug" {
		a.logger = logging.New(s.Log.Level, s.Log.Format)
	}
	a.metrics, err = claimsx.NewMetrics(prometheus.NewRegistry())
	return err
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "claimsctl",
		Short:             "Manage encrypted Moped user claims",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML settings file")

	root.AddCommand(
		a.encryptCommand(),
		a.decryptCommand(),
		a.getCommand(),
		a.putCommand(),
		a.deleteCommand(),
		a.idsCommand(),
		a.verifyCommand(),
	)
	return root
}

func (a *app) codec(ctx context.Context, maxAge time.Duration) (*claimsx.Codec, error) {
	keys, err := bootstrap.KeySource(ctx, a.settings)
	if err != nil {
		return nil, err
	}
	return claimsx.NewCodec(keys, claimsx.WithMaxAge(maxAge)), nil
}

func (a *app) withRepository(cmd *cobra.Command, fn func(*claimsx.Repository) error) error {
	repo, closeRepo, err := bootstrap.Repository(cmd.Context(), a.settings, a.logger, a.metrics)
	if err != nil {
		return err
	}
	defer func() { _ = closeRepo() }()
	return fn(repo)
}

func (a *app) encryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt stdin into a claims token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			codec, err := a.codec(cmd.Context(), 0)
			if err != nil {
				return err
			}
			token, err := codec.Encrypt(cmd.Context(), []byte(strings.TrimRight(string(in), "\r\n")))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func (a *app) decryptCommand() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a claims token read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			codec, err := a.codec(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			plain, err := codec.Decrypt(cmd.Context(), strings.TrimSpace(string(in)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(plain))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "reject tokens older than this (0 disables)")
	return cmd
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <identifier>",
		Short: "Print the stored claims for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepository(cmd, func(repo *claimsx.Repository) error {
				doc, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
}

func (a *app) putCommand() *cobra.Command {
	var (
		cognitoUUID string
		roles       []string
		databaseID  int
		workgroupID int
	)
	cmd := &cobra.Command{
		Use:   "put <identifier>",
		Short: "Encrypt and store claims for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cognitoUUID == "" {
				return errors.New("--uuid is required")
			}
			if len(roles) == 0 {
				return errors.New("at least one --role is required")
			}
			doc := claimsx.NewClaimsDocument(cognitoUUID, roles, databaseID, workgroupID)
			return a.withRepository(cmd, func(repo *claimsx.Repository) error {
				if err := repo.Put(cmd.Context(), args[0], doc, cognitoUUID, databaseID, workgroupID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored claims for %s\n", claimsx.NormalizeIdentifier(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cognitoUUID, "uuid", "", "Cognito user UUID")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "allowed role; the first is the default role")
	cmd.Flags().IntVar(&databaseID, "db-id", 0, "Moped database user id")
	cmd.Flags().IntVar(&workgroupID, "wg-id", 0, "Moped workgroup id")
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identifier>",
		Short: "Remove the stored claims for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepository(cmd, func(repo *claimsx.Repository) error {
				if err := repo.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted claims for %s\n", claimsx.NormalizeIdentifier(args[0]))
				return nil
			})
		},
	}
}

func (a *app) idsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "Extract database_id and workgroup_id from an insert_moped_users response on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			dbID, wgID := claimsx.ExtractDatabaseIDsJSON(in)
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"database_id":  dbID,
				"workgroup_id": wgID,
			})
		},
	}
}

type verifyOutput struct {
	Valid     bool                `json:"valid"`
	Stage     string              `json:"stage"`
	DevBypass bool                `json:"dev_bypass,omitempty"`
	ValidUser bool                `json:"valid_user"`
	Staff     bool                `json:"coa_staff"`
	Roles     map[string]bool     `json:"roles,omitempty"`
	Claims    claimsx.TokenClaims `json:"claims"`
	Policy    *claimsx.AuthPolicy `json:"policy,omitempty"`
}

func (a *app) verifyCommand() *cobra.Command {
	var (
		withPolicy bool
		dev        bool
		roles      []string
	)
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a Cognito token and report the authorization decision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var v claimsx.Verification
			switch {
			case dev:
				caller := claimsx.DefaultDevIdentity(a.settings.Cognito.ClientID).ToCaller()
				v = claimsx.Verification{Result: claimsx.Ok(claimsx.TokenClaims(caller.Identity)), Stage: claimsx.StageValid}
				ctx = claimsx.BindCaller(ctx, caller)
			case len(args) == 1:
				verifier, err := bootstrap.Verifier(a.settings, a.logger, a.metrics)
				if err != nil {
					return err
				}
				v = verifier.Verify(ctx, strings.TrimPrefix(args[0], "Bearer "))
				if v.OK() {
					ctx = claimsx.BindCaller(ctx, claimsx.Caller{Identity: claimsx.Identity(v.Value())})
				}
			default:
				return errors.New("a token is required unless --dev is set")
			}

			out := report(ctx, v, roles)
			if withPolicy {
				table := &claimsx.PolicyTable{}
				if path := a.settings.Authorizer.PolicyFile; path != "" {
					var err error
					if table, err = claimsx.LoadPolicyTable(path, a.settings.Authorizer.APIGatewayARN); err != nil {
						return err
					}
				}
				policy := table.Generate(v)
				out.Policy = &policy
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !v.OK() {
				return fmt.Errorf("token rejected at %s: %w", v.Stage, v.Err())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withPolicy, "policy", false, "also print the generated IAM policy")
	cmd.Flags().BoolVar(&dev, "dev", false, "skip verification and use the local development identity")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "report whether the caller holds these roles")
	return cmd
}

// report evaluates the predicates for the caller bound to ctx.
func report(ctx context.Context, v claimsx.Verification, roles []string) verifyOutput {
	out := verifyOutput{
		Valid:  v.OK(),
		Stage:  v.Stage.String(),
		Claims: v.Value(),
	}
	caller, ok := claimsx.CallerFromContext(ctx)
	if !ok {
		return out
	}
	out.DevBypass = caller.DevBypass
	out.ValidUser = claimsx.IsValidUser(caller.Identity)
	out.Staff = claimsx.IsCOAStaff(caller.Identity.Email())
	if len(roles) > 0 {
		out.Roles = make(map[string]bool, len(roles))
		for _, role := range roles {
			out.Roles[role] = caller.HasRole(role)
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
