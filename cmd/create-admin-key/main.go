package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var key string
	var cost int

	cmd := &cobra.Command{
		Use:   "create-admin-key",
		Short: "Generate an admin key and the bcrypt hash for RAG_ADMIN_KEY_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
			if err != nil {
				return fmt.Errorf("failed to hash admin key: %w", err)
			}

			cmd.Printf("Admin key:          %s\n", key)
			cmd.Printf("RAG_ADMIN_KEY_HASH=%s\n", hash)
			cmd.Println("Send the key in the X-Admin-Key header; store only the hash.")
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hash this key instead of generating one")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
