package findings

import (
	"crypto/sha256"
	"fmt"
)

// ComputeFingerprint produces a deterministic SHA-256 hex digest from the
// combination of check name, location file path, location start line, and the
// matched code. The fingerprint is stable across runs as long as the inputs
// are identical, making it suitable for deduplication and for tracking a
// warning between scans.
func ComputeFingerprint(checkName string, loc Location, code string) string {
	h := sha256.New()
	// Null separators keep ("ab","c") and ("a","bc") apart.
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", checkName, loc.FilePath, loc.StartLine, code)
	return fmt.Sprintf("%x", h.Sum(nil))
}
