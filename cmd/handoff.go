package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/flagstore"
)

func handoffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Inspect and override per-user handoff state",
	}
	cmd.AddCommand(handoffListCmd(), handoffSuspendCmd(), handoffReleaseCmd())
	return cmd
}

func openFlagStore() *flagstore.Store {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)
	store, err := flagstore.New(cfg.HandoffStatePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open handoff store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handoffListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users whose automation is suspended",
		Run: func(cmd *cobra.Command, args []string) {
			store := openFlagStore()
			ids := store.ListEnabled()
			if len(ids) == 0 {
				fmt.Println("no suspended users")
				return
			}
			for _, id := range ids {
				rec, _, _ := store.Read(id)
				fmt.Printf("%s\tsince %s\tby %s (%s)\n", id,
					rec.UpdatedAt.Format("2006-01-02 15:04"), rec.UpdatedBy, rec.Reason)
			}
		},
	}
}

func handoffSuspendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suspend <user-id>",
		Short: "Suspend automation for a user",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openFlagStore()
			enabled := true
			if _, err := store.Write(args[0], flagstore.Patch{
				Enabled:   &enabled,
				UpdatedBy: "system",
				Reason:    flagstore.ReasonAdmin,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "suspend: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("automation suspended for %s\n", args[0])
		},
	}
}

func handoffReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <user-id>",
		Short: "Restore automation for a user",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openFlagStore()
			enabled := false
			if _, err := store.Write(args[0], flagstore.Patch{
				Enabled:   &enabled,
				UpdatedBy: "system",
				Reason:    flagstore.ReasonAdmin,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "release: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("automation restored for %s\n", args[0])
		},
	}
}
