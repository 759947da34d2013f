package driver

import (
	"crypto/sha256"
	"encoding/hex"

	"kiln/internal/config"
	"kiln/internal/version"
)

// Digest is a SHA-256 cache key.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// combineDigest: H(part1 || 0 || part2 || 0 ...).
func combineDigest(parts ...[]byte) Digest {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// SourceDigest identifies a tree document by content only.
func SourceDigest(data []byte) Digest {
	return sha256.Sum256(data)
}

// CacheKey covers everything that changes the lowered module: the
// compiler build, the lowering settings and the tree itself.
func CacheKey(data []byte, cfg config.Config) Digest {
	src := SourceDigest(data)
	return combineDigest([]byte(version.Fingerprint()), []byte(cfg.Fingerprint()), src[:])
}
