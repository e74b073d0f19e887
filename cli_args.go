package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

// envPrefix is prepended to the upper-cased flag name to form the
// environment variable that can set it: --scrypt-cost <-> VAULTCRYPTOR_SCRYPT_COST.
const envPrefix = "VAULTCRYPTOR"

// argContainer stores the parsed CLI options
type argContainer struct {
	debug, quiet, wpanic, progress, dumpmasterkey bool
	// --extpass and --passfile can be passed multiple times
	extpass, passfile []string
	newPassfile       []string
	// For import, several ways to specify exclusions. Both can be specified
	// multiple times.
	exclude, excludeFrom []string
	cpuprofile, memprofile, trace,
	dirID, vaultDir string
	scryptCost uint64
	// --offset and --length select a cleartext byte range for decrypt
	offset, length uint64
	format         uint32
	workers        int
	// Helper variables that are NOT cli options all start with an underscore
	// _pepper is the hex-decoded --pepper.
	_pepper []byte
}

// cli holds the state shared by all subcommands of one invocation.
type cli struct {
	v    *viper.Viper
	args argContainer
	// stopProfiling is set by startProfiling.
	stopProfiling func()
}

func newCLI() *cli {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &cli{v: v, stopProfiling: func() {}}
}

// rootCommand builds the command tree.
func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   tlog.ProgramName + " [flags] command [flags]",
		Short: "Create and work with Cryptomator-compatible encrypted vaults",
		Long: `vaultcryptor creates encrypted vaults, encrypts and decrypts files and names,
imports directory trees and checks vault integrity.

Every flag can also be set through the environment: --scrypt-cost can be
given as ` + envPrefix + `_SCRYPT_COST.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := c.parse(); err != nil {
				return exitcodes.Wrap(err, exitcodes.Usage)
			}
			c.applyLogging()
			return c.startProfiling()
		},
	}
	root.Version = versionString()

	flags := root.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.BoolP("quiet", "q", false, "Quiet - silence informational messages")
	flags.Bool("wpanic", false, "When encountering a warning, panic and exit immediately")
	flags.StringSlice("extpass", nil, "Use external program for the password prompt")
	flags.StringSlice("passfile", nil, "Read password from file")
	flags.String("pepper", "", "Hex-encoded application secret mixed into the key derivation")
	flags.String("cpuprofile", "", "Write cpu profile to specified file")
	flags.String("memprofile", "", "Write memory profile to specified file")
	flags.String("trace", "", "Write execution trace to file")

	root.AddCommand(
		c.initCommand(),
		c.passwdCommand(),
		c.infoCommand(),
		c.encryptCommand(),
		c.decryptCommand(),
		c.authenticateCommand(),
		c.encryptNameCommand(),
		c.decryptNameCommand(),
		c.dirIDCommand(),
		c.importCommand(),
		c.exportCommand(),
		c.fsckCommand(),
		c.xrayCommand(),
		c.versionCommand(),
	)
	return root
}

// parse copies the flag and environment values into c.args.
func (c *cli) parse() error {
	v := c.v
	a := &c.args
	a.debug = v.GetBool("debug")
	a.quiet = v.GetBool("quiet")
	a.wpanic = v.GetBool("wpanic")
	a.progress = v.GetBool("progress")
	a.dumpmasterkey = v.GetBool("dump-masterkey")
	a.extpass = v.GetStringSlice("extpass")
	a.passfile = v.GetStringSlice("passfile")
	a.newPassfile = v.GetStringSlice("new-passfile")
	a.exclude = v.GetStringSlice("exclude")
	a.excludeFrom = v.GetStringSlice("exclude-from")
	a.cpuprofile = v.GetString("cpuprofile")
	a.memprofile = v.GetString("memprofile")
	a.trace = v.GetString("trace")
	a.dirID = v.GetString("dir-id")
	a.vaultDir = v.GetString("vault")
	a.scryptCost = v.GetUint64("scrypt-cost")
	a.offset = v.GetUint64("offset")
	a.length = v.GetUint64("length")
	a.format = v.GetUint32("format")
	a.workers = v.GetInt("workers")

	a._pepper = nil
	if p := v.GetString("pepper"); p != "" {
		pepper, err := hex.DecodeString(p)
		if err != nil {
			return fmt.Errorf("--pepper: %v", err)
		}
		a._pepper = pepper
	}
	return nil
}

func (c *cli) applyLogging() {
	tlog.Debug.Enabled = c.args.debug
	tlog.Info.Enabled = !c.args.quiet
	tlog.Warn.Wpanic = c.args.wpanic
	tlog.Debug.Printf("cli: workers=%d format=%d scrypt-cost=%d pepper=%s",
		c.args.workers, c.args.format, c.args.scryptCost, tlog.Redacted(c.v.GetString("pepper")))
}

// addWorkersFlag adds the -j/--workers flag to "flags".
func addWorkersFlag(flags *pflag.FlagSet) {
	flags.IntP("workers", "j", 0, "Number of files processed in parallel, 0 means one per CPU")
}

// nArgs is cobra.ExactArgs with the Usage exit code.
func nArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return exitcodes.Wrap(fmt.Errorf("usage: %s: %w", cmd.UseLine(), err), exitcodes.Usage)
		}
		return nil
	}
}

// rangeArgs is cobra.RangeArgs with the Usage exit code.
func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return exitcodes.Wrap(fmt.Errorf("usage: %s: %w", cmd.UseLine(), err), exitcodes.Usage)
		}
		return nil
	}
}

// minArgs is cobra.MinimumNArgs with the Usage exit code.
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return exitcodes.Wrap(fmt.Errorf("usage: %s: %w", cmd.UseLine(), err), exitcodes.Usage)
		}
		return nil
	}
}
