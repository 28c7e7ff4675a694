package codec

import (
	gojson "github.com/goccy/go-json"
)

// JSON is the default wire codec. Frames are UTF-8 JSON text and record
// payloads decode into map[string]any.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return gojson.Unmarshal(data, dst)
}

func (JSON) Name() string {
	return "json"
}
