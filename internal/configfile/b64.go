package configfile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// b64Bytes is a byte slice that is stored as a base64 string. Padded
// URL-safe base64 is written; URL-safe and standard alphabets, padded or
// not, are accepted on reading.
type b64Bytes []byte

var b64Decoders = []*base64.Encoding{
	base64.URLEncoding,
	base64.StdEncoding,
	base64.RawURLEncoding,
	base64.RawStdEncoding,
}

func (b b64Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.URLEncoding.EncodeToString(b))
}

func (b *b64Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, enc := range b64Decoders {
		if d, err := enc.DecodeString(s); err == nil {
			*b = d
			return nil
		}
	}
	return fmt.Errorf("invalid base64 value %q", s)
}
