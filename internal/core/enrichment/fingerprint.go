package enrichment

import (
	"hash/fnv"
	"strconv"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const fingerprintSeparator = "\x1f"

// SourceFingerprint is deterministic over its inputs; empty fields still take part so
// ("a", "") and ("", "a") hash differently.
func SourceFingerprint(sourceType domain.SourceType, sourceURL, filename, docID string) string {
	h := fnv.New64a()
	for i, part := range []string{string(sourceType), sourceURL, filename, docID} {
		if i > 0 {
			_, _ = h.Write([]byte(fingerprintSeparator))
		}
		_, _ = h.Write([]byte(part))
	}
	return "src_" + strconv.FormatUint(h.Sum64(), 36)
}
