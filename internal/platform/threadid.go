package platform

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// The platform's SPA addresses threads by an opaque identifier: a
// colon-delimited type-prefixed string, base64-encoded ("thread:12345" ->
// "dGhyZWFkOjEyMzQ1"). The externally visible numeric id appears in page
// URLs. Both directions are needed: encode to build thread-detail requests,
// decode to interpret thread listings.

const threadType = "thread"

// EncodeThreadID builds the platform's opaque identifier from a numeric
// thread id.
func EncodeThreadID(numericID int64) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%d", threadType, numericID)))
}

// DecodeThreadID parses an opaque identifier back into its type tag and
// numeric id. Bare numeric ids are accepted as-is with the default type,
// since some platform surfaces leak the raw number.
func DecodeThreadID(opaque string) (typeTag string, numericID int64, err error) {
	if n, convErr := strconv.ParseInt(opaque, 10, 64); convErr == nil {
		return threadType, n, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", 0, fmt.Errorf("opaque id is neither numeric nor base64: %w", err)
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("opaque id %q has no type prefix", string(decoded))
	}

	numericID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("opaque id %q has non-numeric tail: %w", string(decoded), err)
	}

	return parts[0], numericID, nil
}
