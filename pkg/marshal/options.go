package marshal

import (
	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/util/typeutil"
)

type options struct {
	prefix      string
	skipMissing bool
	strict      bool
	indexErrors bool
	parallelism int
	only        typeutil.Set[string]
	exclude     typeutil.Set[string]
	logger      *log.MLogger

	// 以下只作用于 Unmarshaller。
	validators     []Validator
	preprocessors  []Processor
	postprocessors []Processor
}

func defaultOptions() options {
	return options{
		indexErrors: true,
		parallelism: 1,
	}
}

// Option 用于定制 Marshaller 的行为。
type Option func(*options)

// WithPrefix 为每个输出 key 以及错误 key 增加前缀。Unmarshaller 忽略该选项。
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithSkipMissing 只作用于 Marshaller。开启后，序列化结果为 nil、空字符串、空切片或空 map 的字段不会写入输出。
func WithSkipMissing(v bool) Option {
	return func(o *options) {
		o.skipMissing = v
	}
}

// WithStrict 开启后，只要存在校验错误，调用就会返回 *StrictError（结果仍然返回）。
func WithStrict(v bool) Option {
	return func(o *options) {
		o.strict = v
	}
}

// WithIndexErrors 控制批量模式下的错误是否按元素下标分组。
// 关闭后所有元素的字段错误合并到 Errors.Fields。
func WithIndexErrors(v bool) Option {
	return func(o *options) {
		o.indexErrors = v
	}
}

// WithParallelism 设置批量模式的并发度，小于等于 1 表示串行。
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.parallelism = n
	}
}

// WithOnly 只输出给定名字的字段。名字必须存在于 FieldSpec 中。
func WithOnly(names ...string) Option {
	return func(o *options) {
		if len(names) == 0 {
			o.only = nil
			return
		}
		o.only = typeutil.NewSet(names...)
	}
}

// WithExclude 跳过给定名字的字段。
func WithExclude(names ...string) Option {
	return func(o *options) {
		if len(names) == 0 {
			o.exclude = nil
			return
		}
		o.exclude = typeutil.NewSet(names...)
	}
}

// WithLogger 为 Marshaller 绑定私有 Logger。
func WithLogger(logger *log.MLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithValidators 追加对象级校验，Unmarshaller 在所有字段反序列化之后依次执行。
func WithValidators(validators ...Validator) Option {
	return func(o *options) {
		o.validators = append(o.validators, validators...)
	}
}

// WithPreprocessors 追加在对象级校验之前执行的处理函数。
func WithPreprocessors(fns ...Processor) Option {
	return func(o *options) {
		o.preprocessors = append(o.preprocessors, fns...)
	}
}

// WithPostprocessors 追加在校验通过之后执行的处理函数。严格模式下存在校验错误时不会执行。
func WithPostprocessors(fns ...Processor) Option {
	return func(o *options) {
		o.postprocessors = append(o.postprocessors, fns...)
	}
}
