package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ReplayWindow bounds how old a timestamp-bound signature may be before
// verification rejects it regardless of the MAC.
const ReplayWindow = 300 * time.Second

// Sign computes the outgoing signature for payload: HMAC-SHA256 over
// "<timestamp>.<payload>", hex encoded.
func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	return SignAt(secret, payload, timestamp), timestamp
}

// SignAt is Sign with an explicit timestamp, used by verification.
func SignAt(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTimestamped checks a timestamp-bound signature. It rejects timestamps
// outside the replay window even when the MAC matches.
func VerifyTimestamped(secret string, payload []byte, timestamp int64, signature string) bool {
	if d := time.Since(time.Unix(timestamp, 0)); d > ReplayWindow || d < -ReplayWindow {
		return false
	}
	expected := SignAt(secret, payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
