package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

func (c *cli) fsckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck VAULTDIR",
		Short: "Check the vault for corruption",
		Long: `Walk the whole vault, decrypt every name and directory id and
authenticate the content of every file and symlink.`,
		Args: nArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fsck(cmd, args[0])
		},
	}
	addWorkersFlag(cmd.Flags())
	return cmd
}

func (c *cli) fsck(cmd *cobra.Command, dir string) error {
	v, err := c.openVault(dir)
	if err != nil {
		return err
	}
	defer v.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	events := make(chan workqueue.Event)
	go func() {
		for ev := range events {
			if ev.Done && ev.Err == nil {
				tlog.Debug.Printf("fsck: %s ok", ev.Job)
			}
		}
	}()
	report, err := v.Check(ctx, c.args.workers, events)
	if err != nil {
		tlog.Fatal.Printf("fsck: interrupted: %v", err)
		return exitcodes.Wrap(err, exitcodes.FsckErrors)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "fsck: checked %d directories, %d files, %d symlinks\n",
		report.Dirs, report.Files, report.Symlinks)
	if n := len(report.Errors); n > 0 {
		for _, e := range report.Errors {
			fmt.Fprintf(w, "fsck: %v\n", e)
		}
		return exitcodes.NewErr(fmt.Sprintf("fsck: found %d problems", n), exitcodes.FsckErrors)
	}
	fmt.Fprintln(w, "fsck summary: no problems found")
	return nil
}
