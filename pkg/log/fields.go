package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameField     = "field"
	FieldNameIndex     = "index"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldField 返回一个包含字段名的 zap 字段。
func FieldField(name string) zap.Field {
	return zap.String(FieldNameField, name)
}

// FieldIndex 返回一个包含批量序列化下标的 zap 字段。
func FieldIndex(index int) zap.Field {
	return zap.Int(FieldNameIndex, index)
}
