package wire

import (
	"encoding/json"
	"fmt"
)

const (
	metaKey      = "meta"
	timestampKey = "ts"
	intervalKey  = "f"
)

// DecodeTextBatch parses a companion-feed JSON packet. The reserved
// keys "ts" (sender epoch seconds) and "f" (suggested seconds until
// the next packet) are control metadata, extracted into the batch
// header and excluded from Values. Older feed versions carry them at
// the top level, newer ones nest them under a "meta" object; both
// layouts are accepted.
func DecodeTextBatch(data []byte) (*TextBatch, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	batch := &TextBatch{Values: make(map[string]string, len(raw))}

	meta := raw
	if m, ok := raw[metaKey].(map[string]any); ok {
		meta = m
		delete(raw, metaKey)
	}
	if ts, ok := toFloat(meta[timestampKey]); ok {
		batch.Timestamp = ts
	}
	if f, ok := toFloat(meta[intervalKey]); ok {
		batch.Interval = f
		batch.HasInterval = true
	}
	delete(raw, timestampKey)
	delete(raw, intervalKey)

	for path, value := range raw {
		switch v := value.(type) {
		case string:
			batch.Values[path] = v
		default:
			batch.Values[path] = fmt.Sprintf("%v", v)
		}
	}

	return batch, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
