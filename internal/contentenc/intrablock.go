package contentenc

// intraBlock identifies a part of a file block
type intraBlock struct {
	BlockNo uint64 // Block number in file
	Skip    uint64 // Offset into block plaintext
	Length  uint64 // Length of data from this block
	fs      *ContentEnc
}

// IsPartial - is the block partial? This means only some of the decrypted
// bytes are used.
func (ib *intraBlock) IsPartial() bool {
	if ib.Skip > 0 || ib.Length < ib.fs.plainBS {
		return true
	}
	return false
}

// CiphertextRange - get byte range in ciphertext file corresponding to BlockNo
// (complete block)
func (ib *intraBlock) CiphertextRange() (offset uint64, length uint64) {
	return ib.fs.BlockNoToCipherOff(ib.BlockNo), ib.fs.cipherBS
}
