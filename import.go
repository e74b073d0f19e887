package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/cryptor"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vault"
	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

func (c *cli) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import VAULTDIR SRCDIR",
		Short: "Encrypt a cleartext directory tree into the vault root",
		Long: `Encrypt a cleartext directory tree into the vault root. Existing
directories are reused, existing files are replaced.

--exclude takes gitignore-style patterns relative to SRCDIR.`,
		Args: nArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.importDir(cmd, args[0], args[1])
		},
	}
	cmd.Flags().StringSlice("exclude", nil, "Exclude paths matching this gitignore-style pattern")
	cmd.Flags().StringSlice("exclude-from", nil, "Read exclusion patterns from file")
	cmd.Flags().Bool("progress", false, "Show progress")
	addWorkersFlag(cmd.Flags())
	return cmd
}

// getExclusionPatterns prepares a list of patterns to be excluded.
func (c *cli) getExclusionPatterns() ([]string, error) {
	patterns := append([]string{}, c.args.exclude...)
	lines, err := vault.ReadPatternFiles(c.args.excludeFrom...)
	if err != nil {
		return nil, exitcodes.Wrap(fmt.Errorf("error reading exclusion patterns: %w", err), exitcodes.ExcludeError)
	}
	return append(patterns, lines...), nil
}

func (c *cli) importDir(cmd *cobra.Command, dir, src string) error {
	if err := checkDir(src); err != nil {
		return exitcodes.Wrap(err, exitcodes.Usage)
	}
	patterns, err := c.getExclusionPatterns()
	if err != nil {
		return err
	}
	v, err := c.openVault(dir)
	if err != nil {
		return err
	}
	defer v.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	events := make(chan workqueue.Event)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			switch {
			case !ev.Done:
				if c.args.progress {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %3.0f%%", ev.Job, ev.Progress*100)
				}
			case ev.Err != nil:
				tlog.Warn.Printf("import: %v", ev.Err)
			default:
				tlog.Debug.Printf("import: %s done", ev.Job)
			}
		}
	}()
	stats, err := v.Import(ctx, src, vault.ImportOptions{
		Exclude: patterns,
		Workers: c.args.workers,
		Events:  events,
	})
	<-printed
	tlog.Debug.Printf("import: stats %s", tlog.JSONDump(stats))
	tlog.Info.Printf("Imported %d directories, %d files, %d symlinks, skipped %d",
		stats.Dirs, stats.Files, stats.Symlinks, stats.Skipped)
	return err
}

func (c *cli) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export VAULTDIR PATH DESTFILE",
		Short: "Decrypt the file PATH of the vault into DESTFILE",
		Args:  nArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.openVault(args[0])
			if err != nil {
				return err
			}
			defer v.Close()
			path, dest := args[1], args[2]
			progress := c.progressFunc(cmd.ErrOrStderr(), path)
			err = cryptor.WriteAtomic(dest, 0600, func(w io.Writer) error {
				return v.ReadFile(path, w, progress)
			})
			if err != nil {
				return err
			}
			tlog.Info.Printf("Exported %s to %s (%s)", path, dest, fileSize(dest))
			return nil
		},
	}
	cmd.Flags().Bool("progress", false, "Show progress")
	return cmd
}
