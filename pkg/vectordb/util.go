package vectordb

import (
	"encoding/json"
	"time"

	"github.com/nounverb/nounverb/pkg/stats"
)

// timeNow is the façade's one clock read, isolated so tests can see it
// without reaching into time.Now() call sites scattered across the file.
func timeNow() time.Time {
	return time.Now().UTC()
}

// encodeSnapshot serializes a stats.Snapshot for FlushStatistics, which
// treats it as an opaque blob.
func encodeSnapshot(snap stats.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}
