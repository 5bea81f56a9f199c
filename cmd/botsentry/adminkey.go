package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/triage-ai/botsentry/internal/store"
)

var adminKeyName string

var adminKeyCmd = &cobra.Command{
	Use:   "admin-key",
	Short: "Manage admin API keys",
}

var adminKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin key in Postgres and print it once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if adminKeyName == "" {
			return errors.New("--name is required")
		}
		db, s, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		k, fullKey, err := s.CreateAdminKey(cmd.Context(), adminKeyName)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:     %d\n", k.ID)
		fmt.Fprintf(out, "name:   %s\n", k.Name)
		fmt.Fprintf(out, "key:    %s\n", fullKey)
		fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
		return nil
	},
}

var adminKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List admin keys stored in Postgres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, s, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		keys, err := s.ListAdminKeys(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tCREATED\tSTATUS")
		for _, k := range keys {
			status := "active"
			if k.RevokedAt != nil {
				status = "revoked " + k.RevokedAt.Format("2006-01-02")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s…\t%s\t%s\n",
				k.ID, k.Name, k.KeyPrefix, k.CreatedAt.Format("2006-01-02 15:04"), status)
		}
		return tw.Flush()
	},
}

var adminKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an admin key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key id %q", args[0])
		}
		db, s, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := s.RevokeAdminKey(cmd.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no active admin key with id %d", id)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked key %d\n", id)
		return nil
	},
}

// adminKeyHashCmd generates a key for auth.admin_key_hashes without touching
// Postgres.
var adminKeyHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Generate a key and the bcrypt hash to put in auth.admin_key_hashes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fullKey, hash, _, err := store.GenerateAdminKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "key:  %s\n", fullKey)
		fmt.Fprintf(out, "hash: %s\n", hash)
		return nil
	},
}

func init() {
	adminKeyCreateCmd.Flags().StringVar(&adminKeyName, "name", "", "Human-readable key name")
	adminKeyCmd.AddCommand(adminKeyCreateCmd, adminKeyListCmd, adminKeyRevokeCmd, adminKeyHashCmd)
}
