package marshal

// Missing 是“未取到值”的哨兵类型，与 nil 以及任何业务值都不同。
// Marshaller 在每次调用开始时分配一个新的 *Missing，并在取值失败时把它交给 handler。
type Missing struct {
	// 非零大小，保证每次 new 出来的指针互不相同
	_ byte
}

// NewMissing 返回一个新的哨兵值。
func NewMissing() *Missing {
	return &Missing{}
}

func (*Missing) String() string {
	return "<marshal.missing>"
}

// MarshalJSON 使哨兵值意外进入输出时编码为 null。
func (*Missing) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IsMissing 判断 v 是否为哨兵值（任意一次调用分配的）。
func IsMissing(v any) bool {
	m, ok := v.(*Missing)
	return ok && m != nil
}
