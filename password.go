package main

import (
	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/readpassword"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

func (c *cli) passwdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd VAULTDIR",
		Short: "Change the password of a vault",
		Long: `Change the password of a vault. The master key stays the same, only the
master key file is rewritten with a fresh salt.`,
		Args: nArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.changePassword(args[0])
		},
	}
	cmd.Flags().Uint64("scrypt-cost", 0, "New scrypt cost parameter N, 0 keeps the current one")
	cmd.Flags().StringSlice("new-passfile", nil, "Read the new password from file")
	return cmd
}

// changePassword - change the password of the vault in "dir"
func (c *cli) changePassword(dir string) error {
	filename, mkf, err := loadMasterKeyFile(dir)
	if err != nil {
		return err
	}
	tlog.Info.Println("Please enter your current password.")
	oldPw, err := c.readPassphrase(false, "Old password")
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(oldPw)
	// Check the old password before asking for a new one.
	mk, err := mkf.Unlock(oldPw, c.args._pepper, mkf.Version)
	if err != nil {
		return err
	}
	mk.Wipe()

	var newPw []byte
	if len(c.args.newPassfile) != 0 {
		newPw, err = readpassword.Once(nil, c.args.newPassfile, "")
		if err != nil {
			return exitcodes.Wrap(err, exitcodes.ReadPassword)
		}
	} else {
		tlog.Info.Println("Please enter your new password.")
		newPw, err = readpassword.Twice(nil, nil)
		if err != nil {
			return exitcodes.Wrap(err, exitcodes.ReadPassword)
		}
	}
	defer memguard.WipeBytes(newPw)
	newMkf, err := mkf.ChangePassphrase(oldPw, newPw, c.args._pepper, c.args.scryptCost)
	if err != nil {
		return err
	}
	if err := newMkf.WriteFile(filename); err != nil {
		return exitcodes.Wrap(err, exitcodes.WriteConf)
	}
	tlog.Info.Printf(tlog.ColorGreen + "Password changed." + tlog.ColorReset)
	return nil
}
