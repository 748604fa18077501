package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/auth"
	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/storage"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key and print it once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		desc, _ := cmd.Flags().GetString("description")
		user, _ := cmd.Flags().GetString("user")
		return withStore(func(store *storage.KeyStore) error {
			return createKey(cmd.Context(), store, cmd.OutOrStdout(), name, desc, user)
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.KeyStore) error {
			return listKeys(cmd.Context(), store, cmd.OutOrStdout())
		})
	},
}

var keysEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Activate an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], true)
	},
}

var keysDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Deactivate an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], false)
	},
}

func init() {
	keysCreateCmd.Flags().String("name", "", "key name (required)")
	keysCreateCmd.Flags().String("description", "", "key description")
	keysCreateCmd.Flags().String("user", "", "owning user id")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysEnableCmd, keysDisableCmd)
	rootCmd.AddCommand(keysCmd)
}

func withStore(fn func(store *storage.KeyStore) error) error {
	cfg, err := config.LoadFile("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store)
}

func createKey(ctx context.Context, store *storage.KeyStore, out io.Writer, name, desc, user string) error {
	display, prefix, hash, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	nk := storage.NewKey{Hash: hash, Prefix: prefix, Name: name, Description: desc}
	if user != "" {
		nk.UserID = &user
	}
	rec, err := store.Create(ctx, nk)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Created key %d (%s)\n", rec.ID, rec.Name)
	fmt.Fprintf(out, "   Key: %s\n", display)
	fmt.Fprintln(out, "\nStore it now, it cannot be shown again.")
	return nil
}

func listKeys(ctx context.Context, store *storage.KeyStore, out io.Writer) error {
	keys, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tACTIVE\tUSAGE\tLAST USED")
	for _, k := range keys {
		last := "-"
		if k.LastUsed != nil {
			last = k.LastUsed.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d\t%s\n", k.ID, k.Prefix, k.Name, k.Active, k.UsageCount, last)
	}
	return tw.Flush()
}

func setKeyActive(cmd *cobra.Command, rawID string, active bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", rawID)
	}
	return withStore(func(store *storage.KeyStore) error {
		if err := store.SetActive(cmd.Context(), id, active); err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key %d %s\n", id, state)
		return nil
	})
}
