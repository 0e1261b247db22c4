package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/nikhilbhutani/voicegateway/internal/audio"
)

// Key addresses one cache entry. It is a pure function of its fields.
type Key struct {
	Model     string
	SpeakerID int
	Text      string
}

// Digest is the hex MD5 of the UTF-8 text. MD5 keeps file names identical to
// those of existing cache directories; it is not used for integrity.
func (k Key) Digest() string {
	sum := md5.Sum([]byte(k.Text))
	return hex.EncodeToString(sum[:])
}

// FileName is "{model}_{speakerID}_{digest}.wav".
func (k Key) FileName() string {
	return fmt.Sprintf("%s_%d_%s%s", k.Model, k.SpeakerID, k.Digest(), audio.Extension)
}
