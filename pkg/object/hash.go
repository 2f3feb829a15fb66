package object

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashBytes computes the raw BLAKE2b-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := blake2b.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the BLAKE2b-256 of the envelope "type len\0content",
// mirroring Git's object hashing with a different digest.
func HashObject(objType ObjectType, data []byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only reachable with a non-nil key, which we never pass.
		panic(err)
	}
	fmt.Fprintf(h, "%s %d\x00", objType, len(data))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
