package marshal

import (
	"reflect"
	"strings"
)

// Indexer 由支持下标访问的源对象实现，优先于基于反射的 map/slice 访问。
// key 为 int（整数 key）或 string（路径段）。
type Indexer interface {
	GetItem(key any) (any, bool)
}

// AttrGetter 由支持属性访问的源对象实现，优先于基于反射的字段/方法访问。
type AttrGetter interface {
	GetAttr(name string) (any, bool)
}

// attrTags 为匹配属性名时依次检查的 struct tag。
var attrTags = []string{"marshal", "json"}

// Resolution 为一次解析的结果：Found 为 false 时表示 Absent。
type Resolution struct {
	Value any
	Found bool
}

// Resolve 在 obj 上解析 key。解析失败不会返回错误，只会返回 Found 为 false 的 Resolution。
//
// 整数 key 只做一次下标访问；路径 key 逐段解析，每一段先尝试下标访问，
// 失败后再尝试属性访问，两者都失败时立即返回 Absent，不再尝试后续段。
func Resolve(key LookupKey, obj any) Resolution {
	switch key.kind {
	case KeyIndex:
		v, ok := getItem(obj, key.index)
		if !ok {
			return Resolution{}
		}
		return Resolution{Value: v, Found: true}
	case KeyPath:
		current := obj
		for _, segment := range key.segments {
			next, ok := getItem(current, segment)
			if !ok {
				next, ok = getAttr(current, segment)
				if !ok {
					return Resolution{}
				}
			}
			current = next
		}
		return Resolution{Value: current, Found: true}
	default:
		return Resolution{}
	}
}

// ResolveOr 与 Resolve 相同，解析失败时返回 def。
func ResolveOr(key LookupKey, obj any, def any) any {
	if res := Resolve(key, obj); res.Found {
		return res.Value
	}
	return def
}

// getItem 对应下标访问：Indexer、map（key 可转换为 map 的 key 类型）、
// slice/array（仅 int key，支持负数下标）。
func getItem(obj any, key any) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if ix, ok := obj.(Indexer); ok {
		return ix.GetItem(key)
	}

	switch o := obj.(type) {
	case map[string]any:
		s, ok := key.(string)
		if !ok {
			return nil, false
		}
		v, ok := o[s]
		return v, ok
	case []any:
		i, ok := key.(int)
		if !ok {
			return nil, false
		}
		i, ok = normalizeIndex(i, len(o))
		if !ok {
			return nil, false
		}
		return o[i], true
	}

	rv := indirect(reflect.ValueOf(obj))
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Map:
		mk, ok := mapKey(rv.Type().Key(), key)
		if !ok {
			return nil, false
		}
		v := rv.MapIndex(mk)
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := key.(int)
		if !ok {
			return nil, false
		}
		i, ok = normalizeIndex(i, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	default:
		return nil, false
	}
}

func normalizeIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func mapKey(kt reflect.Type, key any) (reflect.Value, bool) {
	kv := reflect.ValueOf(key)
	if kv.Type().AssignableTo(kt) {
		return kv, true
	}
	switch k := key.(type) {
	case string:
		if kt.Kind() == reflect.String {
			return kv.Convert(kt), true
		}
	case int:
		switch kt.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if reflect.Zero(kt).OverflowInt(int64(k)) {
				return reflect.Value{}, false
			}
			return kv.Convert(kt), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if k < 0 || reflect.Zero(kt).OverflowUint(uint64(k)) {
				return reflect.Value{}, false
			}
			return kv.Convert(kt), true
		}
	}
	return reflect.Value{}, false
}

// getAttr 对应属性访问：AttrGetter、导出的结构体字段（字段名或 marshal/json tag）、
// 无参且返回 (T) 或 (T, error) 的导出方法。最后再按大小写不敏感的方式匹配一次。
func getAttr(obj any, name string) (any, bool) {
	if obj == nil || name == "" {
		return nil, false
	}
	if ag, ok := obj.(AttrGetter); ok {
		return ag.GetAttr(name)
	}

	rv := reflect.ValueOf(obj)
	base := indirect(rv)
	isStruct := base.IsValid() && base.Kind() == reflect.Struct

	if isStruct {
		if v, ok := structField(base, name, false); ok {
			return v, true
		}
	}
	if v, ok := callMethod(rv, name, false); ok {
		return v, true
	}
	if isStruct {
		if v, ok := structField(base, name, true); ok {
			return v, true
		}
	}
	return callMethod(rv, name, true)
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func structField(v reflect.Value, name string, fold bool) (any, bool) {
	for _, f := range reflect.VisibleFields(v.Type()) {
		if !f.IsExported() {
			continue
		}
		matched := false
		if fold {
			matched = strings.EqualFold(f.Name, name)
		} else {
			matched = f.Name == name || tagName(f) == name
		}
		if !matched {
			continue
		}
		fv, err := v.FieldByIndexErr(f.Index)
		if err != nil {
			// 嵌入的指针为 nil
			return nil, false
		}
		return fv.Interface(), true
	}
	return nil, false
}

func tagName(f reflect.StructField) string {
	for _, key := range attrTags {
		tag, ok := f.Tag.Lookup(key)
		if !ok || tag == "-" {
			continue
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name
		}
	}
	return ""
}

var errorType = reflect.TypeFor[error]()

func callMethod(v reflect.Value, name string, fold bool) (value any, ok bool) {
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, false
	}

	var m reflect.Value
	if fold {
		t := v.Type()
		for i := 0; i < t.NumMethod(); i++ {
			if strings.EqualFold(t.Method(i).Name, name) {
				m = v.Method(i)
				break
			}
		}
	} else {
		m = v.MethodByName(name)
	}
	if !m.IsValid() {
		return nil, false
	}

	mt := m.Type()
	if mt.NumIn() != 0 {
		return nil, false
	}
	switch {
	case mt.NumOut() == 1:
	case mt.NumOut() == 2 && mt.Out(1) == errorType:
	default:
		return nil, false
	}

	// 方法内部的 panic 与取值失败同等对待
	defer func() {
		if r := recover(); r != nil {
			value, ok = nil, false
		}
	}()
	out := m.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, false
	}
	return out[0].Interface(), true
}
