package offline

import (
	"net/http"
	"time"
)

// Entry is one stored response. Body holds the exact bytes received.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}
