// Package archive exports the event log as JSON lines to a storage sink
// (local directory or S3) for offline audit. Exports are point-in-time
// copies; the SQLite log stays authoritative.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/pkg/cerr"
	"github.com/crewdhq/crewd/pkg/storage"
)

const pageSize = 500

type Exporter struct {
	log   *event.Log
	store storage.Storage
	now   func() time.Time
}

func NewExporter(log *event.Log, store storage.Storage) *Exporter {
	return &Exporter{
		log:   log,
		store: store,
		now:   time.Now,
	}
}

// Export writes every event appended so far, oldest first, one JSON object
// per line. It returns the artifact path and the number of events written.
func (e *Exporter) Export(ctx context.Context) (string, int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var afterSeq, written int64
	for {
		events, err := e.log.ListAfter(ctx, afterSeq, pageSize)
		if err != nil {
			return "", 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("read events: %w", err))
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return "", 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("encode event %s: %w", ev.ID, err))
			}
			afterSeq = ev.Seq
			written++
		}
	}

	path := fmt.Sprintf("events-%s.jsonl", e.now().UTC().Format("20060102T150405Z"))
	if err := e.store.Write(ctx, path, buf.Bytes()); err != nil {
		return "", 0, cerr.WrapStorageWriteError("archive", err)
	}
	return path, written, nil
}
