package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
)

// newPremiumCmd creates `relaybot premium` for managing plans offline.
func newPremiumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "premium",
		Short: "Manage premium plans",
		Long: `Grant, revoke and list premium plans directly in the store.

Examples:
  relaybot premium add 123456789 30 days
  relaybot premium rem 123456789
  relaybot premium list`,
	}
	cmd.AddCommand(newPremiumAddCmd(), newPremiumRemCmd(), newPremiumListCmd())
	return cmd
}

func newPremiumAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id> [duration]",
		Short: "Grant or extend a plan (e.g. 30days, 12hours, 1 month)",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user ID %q", args[0])
			}
			cfg, store, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			d := cfg.Limits.DefaultPremium
			if len(args) > 1 {
				spec := args[1]
				if len(args) == 3 {
					spec += " " + args[2]
				}
				if d, err = access.ParseDuration(spec); err != nil {
					return err
				}
			}

			mgr := access.NewManager(cfg.AccessConfig(), store, cliLogger(cmd))
			until, err := mgr.AddPremium(cmd.Context(), id, d, 0)
			if err != nil {
				return err
			}
			fmt.Printf("User %d is premium until %s\n", id, until.Local().Format(time.DateTime))
			return nil
		},
	}
}

func newPremiumRemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rem <user-id>",
		Short: "Revoke a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user ID %q", args[0])
			}
			cfg, store, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr := access.NewManager(cfg.AccessConfig(), store, cliLogger(cmd))
			if err := mgr.RemovePremium(cmd.Context(), id); err != nil {
				if errors.Is(err, access.ErrNoPlan) {
					return fmt.Errorf("user %d has no plan", id)
				}
				return err
			}
			fmt.Printf("Plan of user %d removed\n", id)
			return nil
		},
	}
}

func newPremiumListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List premium users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			plans, err := store.ListPremium(cmd.Context())
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Println("No premium users.")
				return nil
			}

			now := time.Now()
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"User", "Expires", "Left", "Added by"})
			table.SetAutoWrapText(false)
			for _, p := range plans {
				left := "expired"
				if p.ExpiresAt.After(now) {
					left = p.ExpiresAt.Sub(now).Round(time.Minute).String()
				}
				addedBy := "-"
				if p.AddedBy != 0 {
					addedBy = strconv.FormatInt(p.AddedBy, 10)
				}
				table.Append([]string{
					strconv.FormatInt(p.UserID, 10),
					p.ExpiresAt.Local().Format(time.DateTime),
					left,
					addedBy,
				})
			}
			table.Render()
			return nil
		},
	}
}
