package liveq

import (
	"errors"
	"fmt"
	"time"

	"github.com/liveq/liveq.go/pkg/logger"
)

// Transformer maps one record to the record handed to the next pipeline
// stage. Each stage receives a clone it owns and may mutate it freely.
type Transformer func(Record) (Record, error)

var errNilTransform = errors.New("transformer returned a nil record")

// applyTransformers folds rec through the pipeline left to right. A stage
// that fails, panics or returns nil is logged and skipped, and the next
// stage receives that stage's input instead. One bad transformer therefore
// costs only its own effect, never the pipeline or the record.
func applyTransformers(rec Record, transformers []Transformer, log logger.Logger) Record {
	if len(transformers) == 0 {
		return rec
	}

	out := rec
	for i, t := range transformers {
		next, err := runTransformer(t, out.Clone())
		if err != nil {
			log.Warn("transformer failed, passing record through unchanged",
				"stage", i, "record", out.ID(), "error", err)
			continue
		}
		out = next
	}
	return out
}

func runTransformer(t Transformer, rec Record) (out Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("transformer panic: %v", r)
		}
	}()

	out, err = t(rec)
	if err == nil && out == nil {
		err = errNilTransform
	}
	return out, err
}

// dateLayouts are the timestamp shapes NormalizeDates accepts, tried in
// order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeDates returns a transformer that converts string timestamps in
// the given fields into time.Time values. Fields holding anything else, and
// strings that fit no known layout, pass through untouched. With no fields
// it covers the conventional created and updated timestamps, which is the
// default pipeline of a new Sync.
func NormalizeDates(fields ...string) Transformer {
	if len(fields) == 0 {
		fields = []string{"created", "updated"}
	}

	return func(rec Record) (Record, error) {
		for _, f := range fields {
			s, ok := rec[f].(string)
			if !ok {
				continue
			}
			for _, layout := range dateLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					rec[f] = ts
					break
				}
			}
		}
		return rec, nil
	}
}
