package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/contentenc"
	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

func (c *cli) xrayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xray FILE",
		Short: "Show the header and chunk layout of an encrypted file",
		Long: `Show the header and chunk layout of an encrypted file.

With --vault, the header is decrypted and every chunk is authenticated.
With --dump-masterkey, FILE is a master key file and the unwrapped keys are
printed in hex.`,
		Example: `  vaultcryptor xray myvault/d/AB/CDEFGHIJKLMNOPQRSTUVWXYZ234567/xyz.c9r
  vaultcryptor xray --dump-masterkey myvault/masterkey.cryptomator`,
		Args: nArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.args.dumpmasterkey {
				return c.dumpMasterKey(cmd.OutOrStdout(), args[0])
			}
			return c.inspectCiphertext(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().Bool("dump-masterkey", false, "Decrypt and dump the master key")
	cmd.Flags().String("vault", "", "Vault whose key is used to decrypt the header and authenticate the chunks")
	return cmd
}

func (c *cli) dumpMasterKey(w io.Writer, fn string) error {
	mkf, err := configfile.Load(fn)
	if err != nil {
		return exitcodes.Wrap(err, exitcodes.LoadConf)
	}
	pw, err := c.readPassphrase(false, "")
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(pw)
	mk, err := mkf.Unlock(pw, c.args._pepper, configfile.SkipVersionCheck)
	if err != nil {
		return err
	}
	defer mk.Wipe()
	fmt.Fprintf(w, "encryptionKey: %s\n", hex.EncodeToString(mk.CipherKey()))
	fmt.Fprintf(w, "macKey:        %s\n", hex.EncodeToString(mk.MacKey()))
	return nil
}

func (c *cli) inspectCiphertext(w io.Writer, fn string) error {
	fd, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer fd.Close()
	fi, err := fd.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()

	headerBytes := make([]byte, contentenc.HeaderLen)
	n, err := fd.ReadAt(headerBytes, 0)
	if err == io.EOF && n == 0 {
		fmt.Fprintln(w, "empty file")
		return nil
	} else if err == io.EOF {
		return fmt.Errorf("incomplete file header: read %d bytes, want %d: %w",
			n, contentenc.HeaderLen, cryptocore.ErrCorruptedHeader)
	} else if err != nil {
		return err
	}
	fh, err := contentenc.ParseHeader(headerBytes)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Header: Nonce: %s, MAC: %s\n", hex.EncodeToString(fh.Nonce), hex.EncodeToString(fh.MAC))

	var ce *contentenc.ContentEnc
	var h *contentenc.Header
	if c.args.vaultDir != "" {
		v, err := c.openVault(c.args.vaultDir)
		if err != nil {
			return err
		}
		defer v.Close()
		ce = v.Cryptor().ContentEnc()
		h, err = ce.DecryptHeader(fh)
		if err != nil {
			return err
		}
		defer h.Wipe()
		if ce.Format().SizeObfuscated {
			fmt.Fprintf(w, "Header: cleartext size %d\n", h.Payload.Size)
		}
	}

	blockSize := int64(contentenc.DefaultBS + contentenc.ChunkOverhead)
	var bad int
	for i := int64(0); ; i++ {
		off := contentenc.HeaderLen + i*blockSize
		if off >= size {
			break
		}
		blockLen := min(blockSize, size-off)
		block := make([]byte, blockLen)
		if _, err := fd.ReadAt(block, off); err != nil && err != io.EOF {
			return err
		}
		if blockLen < contentenc.ChunkOverhead {
			fmt.Fprintf(w, "Chunk %2d: Offset: %7d Len: %d, truncated\n", i, off, blockLen)
			bad++
			break
		}
		nonce := block[:contentenc.NonceLen]
		mac := block[blockLen-contentenc.MACLen:]
		status := ""
		if ce != nil {
			status = ", ok"
			if err := ce.AuthenticateChunk(block, uint64(i), h); err != nil {
				status = ", AUTHENTICATION FAILED"
				bad++
			}
		}
		fmt.Fprintf(w, "Chunk %2d: Nonce: %s, MAC: %s, Offset: %7d Len: %d%s\n",
			i, hex.EncodeToString(nonce), hex.EncodeToString(mac), off, blockLen, status)
	}
	tlog.Debug.Printf("xray: %d bad chunks", bad)
	if bad > 0 {
		return exitcodes.NewErr(fmt.Sprintf("%d bad chunks", bad), exitcodes.AuthFailed)
	}
	return nil
}
