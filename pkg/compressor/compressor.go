package compressor

import (
	"strings"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// Compressor 抽象了“单次压缩/解压”能力，用于压缩序列化后的输出。
type Compressor interface {
	// Compress 将 src 压缩到 dst。
	//
	// dst 一般可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量；
	// 返回值 packet 为压缩后的完整数据。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将压缩数据 src 解压到 dst。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// NopCompressor 不做任何压缩/解压，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

// 编译期断言：确保 NopCompressor 实现了 Compressor 接口。
var _ Compressor = NopCompressor{}

// ByName 按名字创建 Compressor："" 或 "none" 返回 NopCompressor，"zstd" 返回 ZstdCompressor。
func ByName(name string) (Compressor, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return NopCompressor{}, nil
	case "zstd":
		return NewZstdCompressor()
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown compressor %q", name)
	}
}
