package marshal

import (
	jsoniter "github.com/json-iterator/go"
)

var mappingJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Mapping 是按插入顺序保存的 string -> value 映射，即一次 marshal 的输出。
// 零值可直接使用。
type Mapping struct {
	keys   []string
	values map[string]any
}

// NewMapping 创建一个预留了 size 个位置的 Mapping。
func NewMapping(size int) *Mapping {
	return &Mapping{
		keys:   make([]string, 0, size),
		values: make(map[string]any, size),
	}
}

// Set 写入 key；已存在的 key 保持原来的位置。
func (m *Mapping) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get 返回 key 对应的值。
func (m *Mapping) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// GetItem 实现 Indexer，使 Mapping 可以作为 Resolve 与 Unmarshal 的输入。
func (m *Mapping) GetItem(key any) (any, bool) {
	s, ok := key.(string)
	if !ok {
		return nil, false
	}
	return m.Get(s)
}

// Has 判断 key 是否存在。
func (m *Mapping) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys 返回按插入顺序排列的 key。
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len 返回 key 的个数。
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Range 按插入顺序遍历，f 返回 false 时停止。
func (m *Mapping) Range(f func(key string, value any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !f(k, m.values[k]) {
			return
		}
	}
}

// ToMap 返回普通 map，嵌套的 *Mapping 与 []*Mapping 会被递归展开。
func (m *Mapping) ToMap() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = plain(m.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Mapping:
		return t.ToMap()
	case []*Mapping:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = item.ToMap()
		}
		return list
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = plain(item)
		}
		return list
	default:
		return v
	}
}

// MarshalJSON 按插入顺序编码为 JSON 对象。
func (m *Mapping) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	stream := mappingJSON.BorrowStream(nil)
	defer mappingJSON.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, k := range m.keys {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(k)
		stream.WriteVal(m.values[k])
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}
