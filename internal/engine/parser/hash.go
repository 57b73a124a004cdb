package parser

import (
	"fmt"

	"github.com/minio/highwayhash"
)

var hashKey = []byte("codefuse-content-hash-key-000032")

// ContentHash returns a stable 64-bit HighwayHash of data as 16 hex digits.
func ContentHash(data []byte) string {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// Only reachable with a key that is not 32 bytes long.
		panic(err)
	}
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

func countLines(source string) int {
	if source == "" {
		return 0
	}
	n := 0
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			n++
		}
	}
	if source[len(source)-1] != '\n' {
		n++
	}
	return n
}
