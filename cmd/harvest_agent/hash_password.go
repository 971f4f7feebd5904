package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Hash a password for ADMIN_PASSWORD_HASH",
	Long:  `Generates a bcrypt hash of the given password, suitable for the ADMIN_PASSWORD_HASH environment variable used by the serve command's login endpoint.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(_ *cobra.Command, args []string) error {
	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}

	hash, err := passwords.HashPassword(args[0])
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}
