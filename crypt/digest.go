package crypt

import (
	"crypto/sha1"
	"math/big"
)

// ServerHash is the digest the client and the session server both compute
// for a login: SHA-1 over the server id, the shared secret and the public
// key DER, rendered by MinecraftHex.
func ServerHash(serverID string, secret, publicDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicDER)
	return MinecraftHex(h.Sum(nil))
}

// MinecraftHex formats sum as a signed two's complement integer in
// lowercase hex with leading zeros dropped and a '-' for negative values.
func MinecraftHex(sum []byte) string {
	n := new(big.Int).SetBytes(sum)
	if len(sum) > 0 && sum[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(sum))*8))
	}
	return n.Text(16)
}
