package consumer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Merge combines JSON objects into one; on a key collision the later document wins. The output
// has sorted keys at every level so the same inputs always archive to identical bytes.
func Merge(docs ...json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]interface{})
	for i, doc := range docs {
		if len(doc) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.UseNumber()
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("document %d is not a json object: %w", i, err)
		}
		for k, v := range obj {
			merged[k] = v
		}
	}
	var buf bytes.Buffer
	if err := encodeSorted(&buf, merged); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeSorted(buf *bytes.Buffer, v interface{}) error {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeSorted(buf, vv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeSorted(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(vv.String())
	default:
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		buf.Write(b)
	}
	return nil
}
