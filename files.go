package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/contentenc"
	"github.com/rfjakob/vaultcryptor/internal/cryptor"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

// progressFunc returns a contentenc.ProgressFunc that prints a percentage to
// stderr, or nil when --progress was not passed.
func (c *cli) progressFunc(w io.Writer, label string) contentenc.ProgressFunc {
	if !c.args.progress {
		return nil
	}
	return func(f float64) {
		fmt.Fprintf(w, "\r%s: %3.0f%%", label, f*100)
		if f >= 1 {
			fmt.Fprintln(w)
		}
	}
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return units.HumanSize(float64(fi.Size()))
}

func (c *cli) encryptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt VAULTDIR INFILE OUTFILE",
		Short: "Encrypt a single file with the key of a vault",
		Args:  nArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			in, out := args[1], args[2]
			err = v.Cryptor().EncryptFile(in, out, c.progressFunc(cmd.ErrOrStderr(), in))
			if err != nil {
				return err
			}
			tlog.Info.Printf("Encrypted %s (%s) to %s (%s)", in, fileSize(in), out, fileSize(out))
			return nil
		},
	}
	cmd.Flags().Bool("progress", false, "Show progress")
	return cmd
}

func (c *cli) decryptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt VAULTDIR INFILE OUTFILE",
		Short: "Decrypt a single file with the key of a vault",
		Long: `Decrypt a single file with the key of a vault. OUTFILE is only created
when every chunk of INFILE authenticates.

With --offset or --length, only that cleartext byte range is decrypted and
only the chunks it touches are authenticated.`,
		Args: nArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			in, out := args[1], args[2]
			if c.args.offset > 0 || c.args.length > 0 {
				err = cryptor.WriteAtomic(out, 0600, func(w io.Writer) error {
					n, err := v.Cryptor().DecryptRange(in, w, c.args.offset, c.args.length)
					tlog.Debug.Printf("decrypt: %d bytes at offset %d", n, c.args.offset)
					return err
				})
			} else {
				err = v.Cryptor().DecryptFile(in, out, c.progressFunc(cmd.ErrOrStderr(), in))
			}
			if err != nil {
				return err
			}
			tlog.Info.Printf("Decrypted %s (%s) to %s (%s)", in, fileSize(in), out, fileSize(out))
			return nil
		},
	}
	cmd.Flags().Bool("progress", false, "Show progress")
	cmd.Flags().Uint64("offset", 0, "Cleartext offset to start decrypting at")
	cmd.Flags().Uint64("length", 0, "Number of cleartext bytes to decrypt, 0 means up to the end")
	return cmd
}

func (c *cli) authenticateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authenticate VAULTDIR FILE...",
		Short: "Check the header and all chunk MACs of encrypted files",
		Args:  minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			var jobs []workqueue.Job
			for _, path := range args[1:] {
				jobs = append(jobs, workqueue.Job{
					Name: path,
					Run: func(_ context.Context, progress func(float64)) error {
						return v.Cryptor().AuthenticateFile(path, progress)
					},
				})
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			events := make(chan workqueue.Event)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				errCount := 0
				for ev := range events {
					if !ev.Done {
						continue
					}
					if ev.Err != nil {
						errCount++
						fmt.Fprintf(cmd.OutOrStdout(), "FAILED %v\n", ev.Err)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "OK     %s\n", ev.Job)
					}
				}
				tlog.Debug.Printf("authenticate: %d failures", errCount)
			}()
			err = workqueue.Run(ctx, jobs, c.args.workers, events)
			<-printed
			return err
		},
	}
	addWorkersFlag(cmd.Flags())
	return cmd
}
