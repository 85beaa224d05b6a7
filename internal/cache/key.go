package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// KeyPrefix namespaces analysis entries in a shared backend.
const KeyPrefix = "funnel:"

// DeriveKey returns the content-addressed key for an analysis of the two
// texts under service. It is a pure function of its inputs. Each part is
// length-prefixed so moving a separator between texts changes the key.
func DeriveKey(service, adText, landingText string) string {
	h := sha256.New()
	for _, part := range []string{service, adText, landingText} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}
