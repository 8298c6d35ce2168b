package serializer

import (
	"strings"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// 支持的输出格式名。
const (
	FormatJSON     = "json"
	FormatJSONIter = "jsoniter"
	FormatProto    = "proto"
)

// Serializer 抽象了“对象 <-> 字节流”的编码能力，用于把 marshal 的结果
// （*marshal.Mapping、[]*marshal.Mapping 或错误集合）编码后输出。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error
}

// ByName 按格式名返回对应的 Serializer，名字不区分大小写。
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case FormatJSON, "":
		return JSONSerializer{}, nil
	case FormatJSONIter:
		return JSONIterSerializer{}, nil
	case FormatProto, "protobuf":
		return ProtoSerializer{}, nil
	default:
		return nil, merr.WrapErrSerializerNotFound(name)
	}
}
