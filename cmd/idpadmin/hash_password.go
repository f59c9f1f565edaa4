package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/MrEthical07/idpcore"
	"github.com/spf13/cobra"
)

func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the stored form of a password",
		Long: `Encode a password with the configured default scheme. Without an
argument the password is read from the first line of stdin.`,
		Example: `  idpadmin hash-password 's3cret'
  echo 's3cret' | idpadmin hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			hash, err := idpcore.HashPassword(cfg.Password, plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
