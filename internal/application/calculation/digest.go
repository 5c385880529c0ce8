package calculation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

// Digest returns the SHA-256 of the RFC 8785 canonical JSON of res with its
// Digest field cleared. Equal inputs give equal digests.
func Digest(res *royalty.CalculationResult) (string, error) {
	clone := *res
	clone.Digest = ""
	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
