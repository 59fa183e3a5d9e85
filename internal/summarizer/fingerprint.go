package summarizer

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Fingerprint identifies a summarization job by agent, mode and the exact
// entries being summarized. Equal inputs always produce equal fingerprints.
func Fingerprint(agentID string, entries []*memory.Entry, mode Mode) string {
	h := sha256.New()
	h.Write([]byte(agentID))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	for _, e := range entries {
		if e == nil {
			continue
		}
		h.Write([]byte{0})
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
