// Package marshal 将任意 Go 对象按照声明式的字段规格（FieldSpec）转换为有序的 key/value 映射。
//
// 每个字段由两部分组成：
//   - LookupKey：在源对象上定位取值的位置，可以是整数下标，或以 "." 分隔的路径；
//   - FieldHandler：把取到的原始值转换为最终输出值的回调。
//
// 路径的每一段都会先尝试下标访问（map、slice、Indexer），失败后再尝试属性访问
// （结构体字段、无参方法、AttrGetter）。任意一段失败时，handler 收到本次调用专属的
// Missing 哨兵值，由 handler 决定缺失是否合法。
//
// handler 返回 *ValidationError 时只记录到对应字段下，其余字段和对象继续处理；
// 返回其它错误时整个调用立即失败，不返回任何部分结果。
package marshal
