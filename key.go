package liveq

import (
	gojson "github.com/goccy/go-json"
)

// queryKey canonicalizes a query's effective parameters into a cache key.
// Entries carrying zero values are dropped and the remainder is serialized
// with sorted keys, so two queries that differ only in parameter spelling
// order or in explicitly-empty entries share one identity.
func queryKey(collection string, params map[string]any) string {
	effective := make(map[string]any, len(params))
	for k, v := range params {
		if isAbsent(v) {
			continue
		}
		effective[k] = v
	}
	if len(effective) == 0 {
		return collection
	}

	blob, err := gojson.Marshal(effective)
	if err != nil {
		// Parameters are strings, ints and bools; marshaling cannot fail.
		panic(err)
	}
	return collection + "?" + string(blob)
}

func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case int:
		return t == 0
	case bool:
		return !t
	default:
		return false
	}
}
