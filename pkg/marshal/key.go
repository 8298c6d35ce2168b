package marshal

import (
	"math"
	"strconv"
	"strings"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// PathSeparator 分隔路径 key 中的各个段。
const PathSeparator = "."

// KeyKind 表示 LookupKey 的类别。
type KeyKind uint8

const (
	// KeyInvalid 为 LookupKey 的零值，永远解析为 Absent。
	KeyInvalid KeyKind = iota
	// KeyIndex 为整数下标，只做一次下标访问。
	KeyIndex
	// KeyPath 为 "." 分隔的路径，逐段解析。
	KeyPath
)

func (k KeyKind) String() string {
	switch k {
	case KeyIndex:
		return "index"
	case KeyPath:
		return "path"
	default:
		return "invalid"
	}
}

// LookupKey 定位源对象上的一个值。
type LookupKey struct {
	kind     KeyKind
	index    int
	raw      string
	segments []string
}

// IndexKey 返回整数下标 key。
func IndexKey(i int) LookupKey {
	return LookupKey{kind: KeyIndex, index: i}
}

// PathKey 解析 "." 分隔的路径 key，空字符串返回 ErrInvalidLookupKey。
// 空段（例如 "a..b"）是合法的，只是通常无法解析到值。
func PathKey(path string) (LookupKey, error) {
	if path == "" {
		return LookupKey{}, merr.WrapErrInvalidLookupKey(path, "empty path")
	}
	return LookupKey{
		kind:     KeyPath,
		raw:      path,
		segments: strings.Split(path, PathSeparator),
	}, nil
}

// MustPathKey 与 PathKey 相同，解析失败时 panic。
func MustPathKey(path string) LookupKey {
	key, err := PathKey(path)
	if err != nil {
		panic(err)
	}
	return key
}

// KeyOf 将 Go 值转换为 LookupKey。
// 支持各类整数、string 和 LookupKey 本身，其它类型返回 ErrInvalidKeyType。
func KeyOf(v any) (LookupKey, error) {
	switch k := v.(type) {
	case LookupKey:
		if k.kind == KeyInvalid {
			return LookupKey{}, merr.WrapErrInvalidKeyType(v, "zero LookupKey")
		}
		return k, nil
	case string:
		return PathKey(k)
	case int:
		return IndexKey(k), nil
	case int8:
		return IndexKey(int(k)), nil
	case int16:
		return IndexKey(int(k)), nil
	case int32:
		return IndexKey(int(k)), nil
	case int64:
		return IndexKey(int(k)), nil
	case uint8:
		return IndexKey(int(k)), nil
	case uint16:
		return IndexKey(int(k)), nil
	case uint32:
		return IndexKey(int(k)), nil
	case uint:
		if uint64(k) > math.MaxInt {
			return LookupKey{}, merr.WrapErrInvalidKeyType(v, "index overflows int")
		}
		return IndexKey(int(k)), nil
	case uint64:
		if k > math.MaxInt {
			return LookupKey{}, merr.WrapErrInvalidKeyType(v, "index overflows int")
		}
		return IndexKey(int(k)), nil
	default:
		return LookupKey{}, merr.WrapErrInvalidKeyType(v)
	}
}

// Kind 返回 key 的类别。
func (k LookupKey) Kind() KeyKind {
	return k.kind
}

// Index 返回整数下标，仅当 Kind 为 KeyIndex 时有意义。
func (k LookupKey) Index() int {
	return k.index
}

// Segments 返回路径的各个段，仅当 Kind 为 KeyPath 时非空。
func (k LookupKey) Segments() []string {
	return k.segments
}

// IsValid 判断 key 是否为 KeyIndex 或 KeyPath。
func (k LookupKey) IsValid() bool {
	return k.kind != KeyInvalid
}

func (k LookupKey) String() string {
	switch k.kind {
	case KeyIndex:
		return strconv.Itoa(k.index)
	case KeyPath:
		return k.raw
	default:
		return "<invalid>"
	}
}
