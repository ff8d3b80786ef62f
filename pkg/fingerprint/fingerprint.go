// Package fingerprint derives the cache identity of a document from its bytes
// and the active pipeline version.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const domain = "docclass/v1"

// Of returns the fingerprint of content under pipelineVersion.
// The version is length-prefixed so distinct (content, version) pairs never share an input.
func Of(content []byte, pipelineVersion string) types.Fingerprint {
	h, _ := blake2b.New256([]byte(domain))

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(pipelineVersion)))
	h.Write(n[:])
	h.Write([]byte(pipelineVersion))
	h.Write(content)

	return types.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
