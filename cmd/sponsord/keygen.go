package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamtip/sponsord/internal/sponsor"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a sponsor keypair and print the key envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := sponsor.GenerateKeypair()
		if err != nil {
			return err
		}
		fmt.Printf("address: %s\nkey:     %s\n", kp.Address(), kp.Export())
		return nil
	},
}
