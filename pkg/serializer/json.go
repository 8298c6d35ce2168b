package serializer

import (
	"github.com/bytedance/sonic"
	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// JSONSerializer 基于 bytedance/sonic 实现 JSON 编解码，行为与标准库保持一致。
type JSONSerializer struct{}

// 编译期断言：确保 JSONSerializer 实现了 Serializer 接口。
var _ Serializer = (*JSONSerializer)(nil)

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, merr.WrapErrEncodeFailed(FormatJSON, err)
	}
	return data, nil
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

// JSONIterSerializer 基于 json-iterator 实现 JSON 编解码。
type JSONIterSerializer struct{}

var _ Serializer = (*JSONIterSerializer)(nil)

func (JSONIterSerializer) Marshal(v any) ([]byte, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return nil, merr.WrapErrEncodeFailed(FormatJSONIter, err)
	}
	return data, nil
}

func (JSONIterSerializer) Unmarshal(data []byte, v any) error {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, v)
}
