package serializer

import (
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// ProtoSerializer 使用 Protobuf 进行二进制序列化。
//
// proto.Message 直接编码；其它对象先转换为 JSON 兼容的值，
// 对象编码为 structpb.Struct，序列编码为 structpb.ListValue，其余编码为 structpb.Value。
type ProtoSerializer struct{}

// 编译期断言：确保 ProtoSerializer 实现了 Serializer 接口。
var _ Serializer = (*ProtoSerializer)(nil)

func (ProtoSerializer) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		var err error
		msg, err = ToProto(v)
		if err != nil {
			return nil, merr.WrapErrEncodeFailed(FormatProto, err)
		}
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, merr.WrapErrEncodeFailed(FormatProto, err)
	}
	return data, nil
}

func (ProtoSerializer) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("serializer: ProtoSerializer requires proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

// ToProto 将任意 JSON 可编码的对象转换为对应的 structpb 消息。
func ToProto(v any) (proto.Message, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := sonic.ConfigStd.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	value, err := structpb.NewValue(plain)
	if err != nil {
		return nil, err
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StructValue:
		return kind.StructValue, nil
	case *structpb.Value_ListValue:
		return kind.ListValue, nil
	default:
		return value, nil
	}
}
