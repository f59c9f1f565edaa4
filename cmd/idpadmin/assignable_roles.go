package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/MrEthical07/idpcore"
	"github.com/spf13/cobra"
)

func newAssignableRolesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assignable-roles <admin-username>",
		Short: "List the roles an administrator may grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			accounts, ok := rt.store.(idpcore.AccountStore)
			if !ok {
				return fmt.Errorf("store %T cannot look up accounts", rt.store)
			}
			acct, err := accounts.FindByUsername(cmd.Context(), args[0], false)
			if err != nil {
				return fmt.Errorf("admin %q: %w", args[0], err)
			}

			admin := idpcore.Principal{Username: acct.Username, Authorities: acct.Authorities}
			roles, err := rt.engine.AssignableRoles(cmd.Context(), admin)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME")
			for _, r := range roles {
				fmt.Fprintf(tw, "%s\t%s\n", r.Code, r.Name)
			}
			return tw.Flush()
		},
	}
}
