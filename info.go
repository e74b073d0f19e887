package main

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

func (c *cli) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info VAULTDIR",
		Short: "Pretty-print the master key file, without secrets",
		Args:  nArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return info(cmd, args[0])
		},
	}
}

// info pretty-prints the contents of the master key file of "dir" for human
// consumption, stripping out sensitive data. Needs no password.
func info(cmd *cobra.Command, dir string) error {
	_, mkf, err := loadMasterKeyFile(dir)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Version:           %d\n", mkf.Version)
	if f, err := vaultformat.Lookup(mkf.Version); err != nil {
		fmt.Fprintf(w, "Format:            %v\n", err)
	} else {
		fmt.Fprintf(w, "NameEncoding:      %v\n", f.NameEncoding)
		fmt.Fprintf(w, "Layout:            %v, names shortened above %d chars\n", f.Layout, f.ShorteningThreshold)
		fmt.Fprintf(w, "SizeObfuscated:    %v\n", f.SizeObfuscated)
	}
	// scrypt needs 128*N*r bytes of memory
	mem := float64(128 * mkf.ScryptCostParam * uint64(mkf.ScryptBlockSize))
	fmt.Fprintf(w, "Scrypt:            Salt=%dB N=%d R=%d P=1 Memory=%s\n",
		len(mkf.ScryptSalt), mkf.ScryptCostParam, mkf.ScryptBlockSize, units.BytesSize(mem))
	fmt.Fprintf(w, "PrimaryMasterKey:  %dB wrapped\n", len(mkf.PrimaryMasterKey))
	fmt.Fprintf(w, "MacMasterKey:      %dB wrapped\n", len(mkf.MacMasterKey))
	return nil
}
