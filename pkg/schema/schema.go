// Package schema 从 YAML/JSON 文件加载声明式字段定义，并构建 marshal.FieldSpec。
//
// 示例：
//
//	name: user
//	fields:
//	  - name: name
//	    type: upper
//	    required: true
//	  - name: city
//	    attribute: address.city
//	  - name: tags
//	    type: string
//	    many: true
//	  - name: owner
//	    type: nested
//	    fields:
//	      - name: id
//	        type: int
//	  - name: password
//	    load_only: true
//	  - name: nick
//	    load_from: nickname
package schema

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/marshal/fields"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
	zviper "github.com/lk2023060901/zeus-marshal/pkg/util/viper"
)

// 支持的字段类型。
const (
	TypeRaw      = "raw"
	TypeString   = "string"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeTime     = "time"
	TypeUpper    = "upper"
	TypeLower    = "lower"
	TypeNested   = "nested"
	TypeList     = "list"
	TypeConstant = "constant"
	TypeMethod   = "method"
)

// FieldDef 描述一个字段。
type FieldDef struct {
	// Name 为输出 key。
	Name string `mapstructure:"name" json:"name"`
	// Attribute 为取值路径，缺省为 Name。
	Attribute string `mapstructure:"attribute" json:"attribute,omitempty"`
	// Index 为整数下标 key，与 Attribute 互斥。
	Index *int `mapstructure:"index" json:"index,omitempty"`
	// Type 为字段类型，缺省为 raw。
	Type string `mapstructure:"type" json:"type,omitempty"`
	// Required 表示取不到值时报告校验错误。
	Required bool `mapstructure:"required" json:"required,omitempty"`
	// Default 为取不到值时使用的缺省值。
	Default any `mapstructure:"default" json:"default,omitempty"`
	// Nullable 表示 nil 值直接输出为 null。
	Nullable bool `mapstructure:"nullable" json:"nullable,omitempty"`
	// Format 为 time 类型的输出格式。
	Format string `mapstructure:"format" json:"format,omitempty"`
	// Value 为 constant 类型的值。
	Value any `mapstructure:"value" json:"value,omitempty"`
	// Method 为 method 类型调用的方法名，缺省为 Name。
	Method string `mapstructure:"method" json:"method,omitempty"`
	// Many 表示值为序列，逐个元素处理。
	Many bool `mapstructure:"many" json:"many,omitempty"`
	// Fields 为 nested 类型的子字段。
	Fields []FieldDef `mapstructure:"fields" json:"fields,omitempty"`
	// LoadOnly 的字段只在反序列化时使用。
	LoadOnly bool `mapstructure:"load_only" json:"load_only,omitempty"`
	// DumpOnly 的字段只在序列化时使用。
	DumpOnly bool `mapstructure:"dump_only" json:"dump_only,omitempty"`
	// LoadFrom 为反序列化时缺少 Name 后再尝试的输入 key。
	LoadFrom string `mapstructure:"load_from" json:"load_from,omitempty"`
}

// Schema 为一个字段定义文件。
type Schema struct {
	Name   string     `mapstructure:"name" json:"name"`
	Fields []FieldDef `mapstructure:"fields" json:"fields"`
}

// Load 从 YAML 或 JSON 文件加载 Schema。
func Load(path string) (*Schema, error) {
	v := zviper.New()
	if err := v.LoadFile(path); err != nil {
		return nil, merr.WrapErrSchemaInvalid(fmt.Sprintf("read %s: %v", path, err))
	}
	return decode(v, path)
}

// Parse 从内存中的 YAML 或 JSON 内容加载 Schema，typ 为 yaml 或 json。
func Parse(data []byte, typ string) (*Schema, error) {
	v := zviper.New()
	if err := v.LoadBytes(data, typ); err != nil {
		return nil, merr.WrapErrSchemaInvalid(fmt.Sprintf("parse %s: %v", typ, err))
	}
	return decode(v, typ)
}

func decode(v *zviper.Config, source string) (*Schema, error) {
	s := &Schema{}
	if err := v.Unmarshal(s); err != nil {
		return nil, merr.WrapErrSchemaInvalid(fmt.Sprintf("decode %s: %v", source, err))
	}
	return s, nil
}

// Build 使用 m 构建 FieldSpec。nested 字段通过 m.Nested() 序列化，只共享 m 绑定的 Logger，
// 不继承 m 的 only/exclude/prefix 等选项。m 为 nil 时使用默认 Marshaller。
func (s *Schema) Build(m *marshal.Marshaller) (*marshal.FieldSpec, error) {
	if m == nil {
		m = marshal.New()
	}
	if len(s.Fields) == 0 {
		return nil, merr.WrapErrSchemaInvalid("schema has no fields")
	}
	return buildSpec(m, s.Fields, "")
}

func buildSpec(m *marshal.Marshaller, defs []FieldDef, parent string) (*marshal.FieldSpec, error) {
	spec := &marshal.FieldSpec{}
	for _, def := range defs {
		field, err := buildField(m, def, parent)
		if err != nil {
			return nil, err
		}
		if err := spec.Add(field); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func buildField(m *marshal.Marshaller, def FieldDef, parent string) (marshal.Field, error) {
	path := def.Name
	if parent != "" {
		path = parent + "." + def.Name
	}
	if def.Name == "" {
		return marshal.Field{}, merr.WrapErrSchemaInvalid(fmt.Sprintf("field without name under %q", parent))
	}

	key, err := lookupKey(def, path)
	if err != nil {
		return marshal.Field{}, err
	}
	handler, err := buildHandler(m, def, path)
	if err != nil {
		return marshal.Field{}, err
	}
	return marshal.Field{
		Name:        def.Name,
		Key:         key,
		Handler:     handler,
		LoadOnly:    def.LoadOnly,
		DumpOnly:    def.DumpOnly,
		Required:    def.Required,
		LoadFrom:    def.LoadFrom,
		LoadDefault: def.Default,
	}, nil
}

func lookupKey(def FieldDef, path string) (marshal.LookupKey, error) {
	switch {
	case def.Index != nil && def.Attribute != "":
		return marshal.LookupKey{}, merr.WrapErrSchemaInvalid(
			fmt.Sprintf("field %q sets both index and attribute", path))
	case def.Index != nil:
		return marshal.IndexKey(*def.Index), nil
	case def.Attribute != "":
		return marshal.PathKey(def.Attribute)
	default:
		return marshal.LookupKey{}, nil
	}
}

func buildHandler(m *marshal.Marshaller, def FieldDef, path string) (marshal.FieldHandler, error) {
	typ := strings.ToLower(def.Type)
	if typ == "" {
		typ = TypeRaw
	}

	var h marshal.FieldHandler
	switch typ {
	case TypeRaw:
		h = fields.Raw()
	case TypeString:
		h = fields.String()
	case TypeInt:
		h = fields.Int()
	case TypeFloat:
		h = fields.Float()
	case TypeBool:
		h = fields.Bool()
	case TypeTime:
		h = fields.Time(def.Format)
	case TypeUpper:
		h = fields.Upper()
	case TypeLower:
		h = fields.Lower()
	case TypeList:
		h = fields.List(fields.Raw())
	case TypeConstant:
		return fields.Constant(def.Value), nil
	case TypeMethod:
		name := def.Method
		if name == "" {
			name = def.Name
		}
		return fields.Method(name), nil
	case TypeNested:
		if len(def.Fields) == 0 {
			return nil, merr.WrapErrSchemaInvalid(fmt.Sprintf("nested field %q has no fields", path))
		}
		spec, err := buildSpec(m, def.Fields, path)
		if err != nil {
			return nil, err
		}
		if def.Many {
			h = fields.NestedList(m, spec)
		} else {
			h = fields.Nested(m, spec)
		}
	default:
		return nil, merr.WrapErrSchemaUnknownType(path, def.Type)
	}

	if def.Many && typ != TypeNested && typ != TypeList {
		h = fields.List(h)
	}
	if def.Nullable {
		h = fields.Nullable(h)
	}
	switch {
	case def.Required:
		h = fields.Required(h)
	case def.Default != nil:
		h = fields.Default(def.Default, h)
	}
	return h, nil
}
