package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/pbctl/cmd/pbctl/handlers"
	"github.com/imamik/pbctl/internal/util/keygen"
)

// Keygen returns the command that creates an SSH key pair for pbctl.
//
// Optional flags:
//
//	--type: Key type, ed25519 or rsa (default: ed25519)
//	--bits: RSA key size (default: 4096)
func Keygen() *cobra.Command {
	var keyType string
	var bits int

	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate an SSH key pair for server access",
		Long: `Generate an SSH key pair. The private key is written to <path>, the public
key to <path>.pub. Existing files are never overwritten.

Examples:
  pbctl keygen ~/.ssh/pbctl_ed25519
  pbctl keygen ./id_rsa --type rsa --bits 4096`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Keygen(cmd.OutOrStdout(), args[0], keyType, bits)
		},
	}

	cmd.Flags().StringVar(&keyType, "type", keygen.TypeEd25519, "Key type: ed25519 or rsa")
	cmd.Flags().IntVar(&bits, "bits", 4096, "RSA key size in bits")

	return cmd
}
