package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vault"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

func (c *cli) initCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init VAULTDIR",
		Short: "Create a new vault in an empty directory",
		Args:  nArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.initDir(args[0])
		},
	}
	cmd.Flags().Uint32("format", vaultformat.Latest, "Vault format version to create, one of "+supportedFormats())
	cmd.Flags().Uint64("scrypt-cost", configfile.ScryptDefaultN,
		"scrypt cost parameter N, a power of two. Lower values speed up mounting but make the password easier to brute-force")
	return cmd
}

func supportedFormats() string {
	var s []string
	for _, f := range vaultformat.Supported() {
		s = append(s, strconv.Itoa(int(f.Version)))
	}
	return strings.Join(s, ", ")
}

// initDir initializes an empty directory for use as a vault.
func (c *cli) initDir(dir string) error {
	if _, err := vaultformat.Lookup(c.args.format); err != nil {
		return err
	}
	if err := checkDir(dir); err != nil {
		return exitcodes.Wrap(err, exitcodes.VaultDir)
	}
	if len(c.args.extpass) == 0 && len(c.args.passfile) == 0 {
		tlog.Info.Printf("Choose a password for protecting your files.")
	} else {
		tlog.Info.Printf("Using password provided via --extpass or --passfile.")
	}
	pw, err := c.readPassphrase(true, "")
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(pw)
	v, err := vault.Create(dir, pw, vault.CreateOptions{
		Version:         c.args.format,
		ScryptCostParam: c.args.scryptCost,
		Pepper:          c.args._pepper,
	})
	if err != nil {
		return exitcodes.Wrap(err, exitcodes.Init)
	}
	v.Close()

	tlog.Info.Printf(tlog.ColorGreen+"The vault (format %d) has been created successfully."+tlog.ColorReset,
		c.args.format)
	wd, _ := os.Getwd()
	friendlyPath, _ := filepath.Rel(wd, dir)
	if strings.HasPrefix(friendlyPath, "../") {
		// A relative path that starts with "../" is pretty unfriendly, just
		// keep the absolute path.
		friendlyPath = dir
	}
	tlog.Info.Printf(tlog.ColorGrey+"You can now import files using: %s import %s SRCDIR"+tlog.ColorReset,
		tlog.ProgramName, friendlyPath)
	return nil
}
