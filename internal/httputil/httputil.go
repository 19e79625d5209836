// Package httputil holds small HTTP response-handling helpers shared by the
// Segment Provider's wire client.
package httputil

import (
	"io"
	"net/http"
)

// MaxResponseBody bounds how much of a segment-database response body is
// read into memory before it's considered oversized.
const MaxResponseBody = 2 << 20 // 2 MiB

// DrainBody ensures the connection can be reused for keep-alive.
func DrainBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// Truncate converts a byte slice to string and truncates to maxRunes runes,
// appending "..." if truncated.
func Truncate(b []byte, maxRunes int) string {
	r := []rune(string(b))
	if len(r) > maxRunes {
		return string(r[:maxRunes]) + "..."
	}
	return string(r)
}
