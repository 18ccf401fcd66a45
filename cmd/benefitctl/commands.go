package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	pb "github.com/example/benefits/api/gen/benefit"
	"github.com/example/benefits/internal/app"
	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/config"
)

func newTransferCmd(cf *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer SOURCE_ID DESTINATION_ID AMOUNT",
		Short: "move AMOUNT from one account to another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:2]...)
			if err != nil {
				return err
			}
			return cf.call(cmd.Context(), func(ctx context.Context, client pb.BenefitServiceClient) error {
				resp, err := client.Transfer(ctx, &pb.TransferRequest{SourceId: ids[0], DestinationId: ids[1], Amount: args[2]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newGetCmd(cf *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args...)
			if err != nil {
				return err
			}
			return cf.call(cmd.Context(), func(ctx context.Context, client pb.BenefitServiceClient) error {
				resp, err := client.GetAccount(ctx, &pb.GetAccountRequest{Id: ids[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Account)
			})
		},
	}
}

func newListCmd(cf *clientFlags) *cobra.Command {
	var req pb.ListAccountsRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cf.call(cmd.Context(), func(ctx context.Context, client pb.BenefitServiceClient) error {
				resp, err := client.ListAccounts(ctx, &req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Accounts)
			})
		},
	}
	cmd.Flags().BoolVar(&req.ActiveOnly, "active", false, "only active accounts")
	cmd.Flags().Int32Var(&req.Limit, "limit", 0, "maximum number of accounts (0 for all)")
	cmd.Flags().Int32Var(&req.Offset, "offset", 0, "accounts to skip")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var driver, databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply the database schema",
		Long:  `Apply the embedded schema migrations to a PostgreSQL or SQLite database.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url (or DATABASE_URL) is required")
			}
			logger := app.NewLogger(cmd.ErrOrStderr(), "")
			switch driver {
			case config.DriverPostgres:
				return benefit.MigratePostgres(databaseURL, logger)
			case config.DriverSQLite:
				db, err := benefit.OpenSQLite(databaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				return benefit.MigrateSQLite(db, logger)
			default:
				return fmt.Errorf("unsupported driver %q", driver)
			}
		},
	}
	cmd.Flags().StringVar(&driver, "driver", envOr("STORE_DRIVER", config.DriverPostgres), "postgres or sqlite")
	cmd.Flags().StringVar(&databaseURL, "database-url", envOr("DATABASE_URL", ""), "database URL or SQLite path")
	return cmd
}

func parseIDs(args ...string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid account id %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}
