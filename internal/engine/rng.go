package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Outcome derivation constants. The first 8 hex characters of the HMAC
// digest are interpreted as a uint32, so the outcome space is 2^32.
const (
	outcomePrefixLen = 8
	outcomeSpace     = 1 << 32
)

// DeriveOutcome derives a uniformly distributed value in [0,1) from the
// server secret, the player-supplied client seed, and the round counter.
//
// message = clientSeed + ":" + roundCounter
// outcome = uint32(hex(HMAC-SHA256(serverSecret, message))[:8]) / 2^32
//
// The derivation is bit-for-bit reproducible on any platform: a uint32 and
// a division by a power of two are both exact in float64, so a player can
// recompute the identical value once the secret is revealed.
func DeriveOutcome(serverSecret, clientSeed string, roundCounter uint64) float64 {
	h := hmac.New(sha256.New, []byte(serverSecret))
	h.Write([]byte(clientSeed + ":" + strconv.FormatUint(roundCounter, 10)))
	digest := hex.EncodeToString(h.Sum(nil))

	prefix, err := strconv.ParseUint(digest[:outcomePrefixLen], 16, 64)
	if err != nil {
		// digest is hex by construction; unreachable
		panic(fmt.Sprintf("engine: malformed digest prefix: %v", err))
	}

	return float64(prefix) / outcomeSpace
}
