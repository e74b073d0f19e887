package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/nametransform"
)

func (c *cli) encryptNameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt-name VAULTDIR NAME...",
		Short: "Encrypt file names for the directory given by --dir-id",
		Args:  minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			for _, name := range args[1:] {
				enc, err := v.Cryptor().EncryptFilename(name, c.args.dirID)
				if err != nil {
					return fmt.Errorf("%q: %w", name, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), enc)
			}
			return nil
		},
	}
	cmd.Flags().String("dir-id", nametransform.RootDirID, "Directory id, empty for the root directory")
	return cmd
}

func (c *cli) decryptNameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt-name VAULTDIR CIPHERNAME...",
		Short: "Decrypt file names of the directory given by --dir-id",
		Long: `Decrypt file names of the directory given by --dir-id. The names must
not carry the layout suffix or prefix (".c9r", "0", "_").`,
		Args: minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			for _, enc := range args[1:] {
				name, err := v.Cryptor().DecryptFilename(enc, c.args.dirID)
				if err != nil {
					return fmt.Errorf("%q: %w", enc, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().String("dir-id", nametransform.RootDirID, "Directory id, empty for the root directory")
	return cmd
}

func (c *cli) dirIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dir-id VAULTDIR [PATH]",
		Short: "Print the directory id and the ciphertext directory of a cleartext directory",
		Args:  rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			id, err := v.ResolveDir(path)
			if err != nil {
				return err
			}
			hashed := v.Cryptor().EncryptDirectoryID(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%q %s\n", id, nametransform.DirPath(hashed))
			return nil
		},
	}
}
