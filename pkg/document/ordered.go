package document

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// orderedMap marshals an *Object preserving field insertion order, since
// the standard map[string]interface{} path sorts keys and would silently
// reorder every document round-tripped through the engine.
type orderedMap struct {
	obj *Object
}

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.obj.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v, _ := m.obj.Get(k)
		vb, err := json.Marshal(toPlain(v))
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func bytesReaderOf(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
