package services

import (
	"encoding/hex"
	"log"

	"golang.org/x/crypto/blake2b"

	"sessionguard/model"
)

// Fingerprinter derives a stable pseudo-identifier for a device from its
// connection metadata. The fingerprint is an anomaly-detection signal, not
// an authentication boundary: every input is client-controlled except the
// server-side salt.
type Fingerprinter struct {
	salt []byte
}

func NewFingerprinter(salt string) *Fingerprinter {
	return &Fingerprinter{salt: []byte(salt)}
}

// Fingerprint hashes the ordered device tuple with the server salt as the
// blake2b key. Same tuple, same output; missing headers hash as empty
// strings.
func (f *Fingerprinter) Fingerprint(meta model.DeviceMeta) string {
	h, err := blake2b.New256(f.salt)
	if err != nil {
		// Only reachable with a key longer than 64 bytes; fall back to
		// the unkeyed variant rather than failing a pure function.
		log.Printf("fingerprint: invalid salt length, using unkeyed hash: %v", err)
		h, _ = blake2b.New256(nil)
	}

	for _, part := range []string{
		meta.UserAgent,
		meta.AcceptLanguage,
		meta.AcceptEncoding,
		meta.IPAddress,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
