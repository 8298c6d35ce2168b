package marshal

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/metrics"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

var (
	upperHandler = HandlerFunc(func(value any, _ string, _ any) (any, error) {
		if IsMissing(value) {
			return value, nil
		}
		s, ok := value.(string)
		if !ok {
			return nil, NewValidationError("not a string.")
		}
		return strings.ToUpper(s), nil
	})

	identityHandler = HandlerFunc(func(value any, _ string, _ any) (any, error) {
		return value, nil
	})

	// requiredHandler 在取不到值时返回校验错误
	requiredHandler = HandlerFunc(func(value any, _ string, _ any) (any, error) {
		if IsMissing(value) {
			return nil, NewValidationError("missing data for required field.")
		}
		return value, nil
	})

	errBackend = errors.New("backend unavailable")

	brokenHandler = HandlerFunc(func(any, string, any) (any, error) {
		return nil, errBackend
	})
)

// subHandler 使用 MarshalNested 序列化嵌套对象。
type subHandler struct {
	m    *Marshaller
	spec *FieldSpec
}

func (h subHandler) Serialize(value any, name string, obj any) (any, error) {
	return h.SerializeContext(context.Background(), value, name, obj)
}

func (h subHandler) SerializeContext(ctx context.Context, value any, _ string, _ any) (any, error) {
	if IsMissing(value) {
		return value, nil
	}
	out, errs, err := h.m.MarshalNested(ctx, value, h.spec)
	if len(errs) > 0 {
		return nil, NewNestedValidationError(errs)
	}
	return out, err
}

type MarshallerSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *MarshallerSuite) SetupSuite() {
	logger, props, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug"})
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, props)
}

func (s *MarshallerSuite) TearDownSuite() {
	logger, props, err := log.InitLoggerWithWriteSyncer(&log.Config{Level: "info"}, zapcore.AddSync(io.Discard))
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, props)
}

func (s *MarshallerSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *MarshallerSuite) personSpec() *FieldSpec {
	return MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "age", Handler: identityHandler},
	)
}

func (s *MarshallerSuite) TestMarshalOne() {
	out, errs, err := New().MarshalOne(s.ctx, map[string]any{"name": "alice", "age": 30}, s.personSpec())
	s.Require().NoError(err)
	s.Empty(errs)
	s.Equal([]string{"name", "age"}, out.Keys())
	s.Equal(map[string]any{"name": "ALICE", "age": 30}, out.ToMap())
}

func (s *MarshallerSuite) TestValidationErrorDoesNotAbort() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "age", Handler: requiredHandler},
	)
	out, errs, err := New().MarshalOne(s.ctx, map[string]any{"name": "bob"}, spec)
	s.Require().NoError(err)
	s.Equal(map[string]any{"name": "BOB"}, out.ToMap())
	s.Require().Contains(errs, "age")
	s.Equal([]string{"missing data for required field."}, errs["age"].Messages)

	data, err := jsoniter.Marshal(errs)
	s.Require().NoError(err)
	s.JSONEq(`{"age":["missing data for required field."]}`, string(data))
}

func (s *MarshallerSuite) TestCodedValidationError() {
	spec := MustFieldSpec(Field{Name: "age", Handler: HandlerFunc(func(any, string, any) (any, error) {
		return nil, merr.WrapErrFieldValidation("age", "must be positive")
	})})
	out, errs, err := New().MarshalOne(s.ctx, map[string]any{"age": -1}, spec)
	s.Require().NoError(err)
	s.Equal(0, out.Len())
	s.Contains(errs, "age")
}

func (s *MarshallerSuite) TestUnexpectedErrorAborts() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "x", Handler: brokenHandler},
	)
	out, errs, err := New().MarshalOne(s.ctx, map[string]any{"name": "carol"}, spec)
	s.Nil(out)
	s.Nil(errs)
	s.ErrorIs(err, merr.ErrFieldUnexpected)
	s.ErrorIs(err, errBackend)
	s.True(merr.IsFatal(err))
}

func (s *MarshallerSuite) TestHandlerPanicIsFatal() {
	spec := MustFieldSpec(Field{Name: "x", Handler: HandlerFunc(func(any, string, any) (any, error) {
		panic("bad handler")
	})})
	out, _, err := New().MarshalOne(s.ctx, map[string]any{}, spec)
	s.Nil(out)
	s.ErrorIs(err, merr.ErrFieldUnexpected)
}

func (s *MarshallerSuite) TestMissingSentinel() {
	var (
		mu   sync.Mutex
		seen []any
	)
	record := HandlerFunc(func(value any, name string, obj any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, value)
		return value, nil
	})
	spec := MustFieldSpec(
		Field{Name: "a", Handler: record},
		Field{Name: "b", Handler: record},
		Field{Name: "c", Handler: record},
	)
	m := New()
	out, errs, err := m.MarshalOne(s.ctx, map[string]any{"c": nil}, spec)
	s.Require().NoError(err)
	s.Empty(errs)
	// 哨兵原样返回时 key 被省略，nil 值照常写入
	s.Equal([]string{"c"}, out.Keys())
	s.Require().Len(seen, 3)
	s.True(IsMissing(seen[0]))
	s.Same(seen[0], seen[1])
	s.Nil(seen[2])

	_, _, err = m.MarshalOne(s.ctx, map[string]any{}, spec)
	s.Require().NoError(err)
	s.NotSame(seen[0], seen[3])
}

func (s *MarshallerSuite) TestHandlerArguments() {
	obj := map[string]any{"profile": map[string]any{"nick": "dd"}}
	var gotName string
	var gotObj any
	spec := MustFieldSpec(Field{
		Name: "nickname",
		Key:  MustPathKey("profile.nick"),
		Handler: HandlerFunc(func(value any, name string, o any) (any, error) {
			gotName, gotObj = name, o
			return value, nil
		}),
	})
	out, _, err := New(WithPrefix("user_")).MarshalOne(s.ctx, obj, spec)
	s.Require().NoError(err)
	s.Equal("nickname", gotName)
	s.Equal(obj, gotObj)
	s.Equal(map[string]any{"user_nickname": "dd"}, out.ToMap())
}

func (s *MarshallerSuite) TestIndexKeyField() {
	spec := MustFieldSpec(
		Field{Name: "first", Key: IndexKey(0), Handler: identityHandler},
		Field{Name: "last", Key: IndexKey(-1), Handler: identityHandler},
		Field{Name: "tenth", Key: IndexKey(10), Handler: identityHandler},
	)
	out, _, err := New().MarshalOne(s.ctx, []string{"a", "b", "c"}, spec)
	s.Require().NoError(err)
	s.Equal(map[string]any{"first": "a", "last": "c"}, out.ToMap())
}

func (s *MarshallerSuite) TestPrefixAppliesToErrors() {
	spec := MustFieldSpec(Field{Name: "age", Handler: requiredHandler})
	_, errs, err := New(WithPrefix("p.")).MarshalOne(s.ctx, struct{}{}, spec)
	s.Require().NoError(err)
	s.Contains(errs, "p.age")
}

func (s *MarshallerSuite) TestOnlyAndExclude() {
	obj := map[string]any{"name": "dave", "age": 40}

	out, _, err := New(WithOnly("age")).MarshalOne(s.ctx, obj, s.personSpec())
	s.Require().NoError(err)
	s.Equal([]string{"age"}, out.Keys())

	out, _, err = New(WithExclude("age")).MarshalOne(s.ctx, obj, s.personSpec())
	s.Require().NoError(err)
	s.Equal([]string{"name"}, out.Keys())

	_, _, err = New(WithOnly("unknown")).MarshalOne(s.ctx, obj, s.personSpec())
	s.ErrorIs(err, merr.ErrInvalidFieldSpec)
}

func (s *MarshallerSuite) TestSkipMissing() {
	spec := MustFieldSpec(
		Field{Name: "a", Handler: identityHandler},
		Field{Name: "b", Handler: identityHandler},
		Field{Name: "c", Handler: identityHandler},
		Field{Name: "d", Handler: identityHandler},
		Field{Name: "e", Handler: identityHandler},
	)
	obj := map[string]any{"a": nil, "b": "", "c": []int{}, "d": map[string]int{}, "e": 0}

	out, _, err := New(WithSkipMissing(true)).MarshalOne(s.ctx, obj, spec)
	s.Require().NoError(err)
	s.Equal([]string{"e"}, out.Keys())

	out, _, err = New().MarshalOne(s.ctx, obj, spec)
	s.Require().NoError(err)
	s.Equal(5, out.Len())
}

func (s *MarshallerSuite) TestStrict() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "age", Handler: requiredHandler},
	)
	out, errs, err := New(WithStrict(true)).MarshalOne(s.ctx, map[string]any{"name": "eve"}, spec)
	s.Require().Error(err)
	s.ErrorIs(err, merr.ErrStrictValidation)
	s.False(merr.IsFatal(err))
	var strictErr *StrictError
	s.Require().True(errors.As(err, &strictErr))
	s.Equal(1, strictErr.Errors.Count())
	s.Equal(map[string]any{"name": "EVE"}, out.ToMap())
	s.Len(errs, 1)

	_, _, err = New(WithStrict(true)).MarshalOne(s.ctx, map[string]any{"name": "eve", "age": 1}, spec)
	s.NoError(err)
}

func (s *MarshallerSuite) TestNilSpec() {
	_, _, err := New().MarshalOne(s.ctx, map[string]any{}, nil)
	s.ErrorIs(err, merr.ErrInvalidFieldSpec)
	_, _, err = New().MarshalMany(s.ctx, []any{}, nil)
	s.ErrorIs(err, merr.ErrInvalidFieldSpec)
}

func (s *MarshallerSuite) TestMarshalMany() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "age", Handler: requiredHandler},
	)
	objs := []map[string]any{
		{"name": "a", "age": 1},
		{"name": "b"},
		{"name": 3, "age": 3},
	}
	outs, errs, err := New().MarshalMany(s.ctx, objs, spec)
	s.Require().NoError(err)
	s.Require().Len(outs, 3)
	s.Equal(map[string]any{"name": "A", "age": 1}, outs[0].ToMap())
	s.Equal(map[string]any{"name": "B"}, outs[1].ToMap())
	s.Equal(map[string]any{"age": 3}, outs[2].ToMap())

	s.Equal([]int{1, 2}, errs.Items.Indexes())
	s.Contains(errs.Items[1], "age")
	s.Contains(errs.Items[2], "name")
	s.Equal(2, errs.Count())

	data, err := jsoniter.Marshal(errs)
	s.Require().NoError(err)
	s.JSONEq(`{"1":{"age":["missing data for required field."]},"2":{"name":["not a string."]}}`, string(data))
}

func (s *MarshallerSuite) TestMarshalManyFlatErrors() {
	spec := MustFieldSpec(Field{Name: "age", Handler: requiredHandler})
	_, errs, err := New(WithIndexErrors(false)).MarshalMany(s.ctx, []any{map[string]any{}, map[string]any{}}, spec)
	s.Require().NoError(err)
	s.Empty(errs.Items)
	s.Require().Contains(errs.Fields, "age")
	s.Len(errs.Fields["age"].Messages, 2)
}

func (s *MarshallerSuite) TestMarshalManyEdgeCases() {
	m := New()

	outs, errs, err := m.MarshalMany(s.ctx, []any{}, s.personSpec())
	s.Require().NoError(err)
	s.Empty(outs)
	s.True(errs.Empty())

	outs, errs, err = m.MarshalMany(s.ctx, nil, s.personSpec())
	s.Require().NoError(err)
	s.Empty(outs)
	s.True(errs.Empty())

	outs, _, err = m.MarshalMany(s.ctx, [2]map[string]any{{"name": "x"}, {"age": 1}}, s.personSpec())
	s.Require().NoError(err)
	s.Len(outs, 2)

	_, _, err = m.MarshalMany(s.ctx, "not a list", s.personSpec())
	s.ErrorIs(err, merr.ErrNotSequence)

	_, _, err = m.MarshalMany(s.ctx, map[string]any{}, s.personSpec())
	s.ErrorIs(err, merr.ErrNotSequence)
}

func (s *MarshallerSuite) TestMarshalManyAborts() {
	spec := MustFieldSpec(Field{Name: "x", Handler: HandlerFunc(func(value any, _ string, _ any) (any, error) {
		if value == "bad" {
			return nil, errBackend
		}
		return value, nil
	})})
	objs := []map[string]any{{"x": "ok"}, {"x": "bad"}, {"x": "ok"}}

	outs, errs, err := New().MarshalMany(s.ctx, objs, spec)
	s.Nil(outs)
	s.Nil(errs)
	s.ErrorIs(err, errBackend)
	s.ErrorIs(err, merr.ErrFieldUnexpected)
	s.Contains(err.Error(), "marshal item 1")
}

func (s *MarshallerSuite) TestMarshalManyCanceled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, _, err := New().MarshalMany(ctx, []any{map[string]any{}}, s.personSpec())
	s.ErrorIs(err, context.Canceled)
	s.True(merr.IsFatal(err))
}

func (s *MarshallerSuite) TestMarshalManyParallel() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "age", Handler: requiredHandler},
	)
	objs := make([]any, 64)
	for i := range objs {
		if i%2 == 0 {
			objs[i] = map[string]any{"name": "n", "age": i}
		} else {
			objs[i] = map[string]any{"name": "n"}
		}
	}

	outs, errs, err := New(WithParallelism(4)).MarshalMany(s.ctx, objs, spec)
	s.Require().NoError(err)
	s.Require().Len(outs, len(objs))
	for i, out := range outs {
		if i%2 == 0 {
			s.Equal(map[string]any{"name": "N", "age": i}, out.ToMap())
		} else {
			s.Equal(map[string]any{"name": "N"}, out.ToMap())
			s.Contains(errs.Items[i], "age")
		}
	}
	s.Equal(32, errs.Count())
}

func (s *MarshallerSuite) TestMarshalManyParallelAborts() {
	spec := MustFieldSpec(Field{Name: "x", Handler: HandlerFunc(func(value any, _ string, _ any) (any, error) {
		if value == "bad" {
			return nil, errBackend
		}
		return value, nil
	})})
	objs := make([]any, 16)
	for i := range objs {
		objs[i] = map[string]any{"x": "ok"}
	}
	objs[5] = map[string]any{"x": "bad"}

	outs, _, err := New(WithParallelism(3)).MarshalMany(s.ctx, objs, spec)
	s.Nil(outs)
	s.ErrorIs(err, errBackend)
	s.Contains(err.Error(), "marshal item 5")
}

func (s *MarshallerSuite) TestMarshalDispatch() {
	m := New()

	res, err := m.Marshal(s.ctx, map[string]any{"name": "fay", "age": 1}, s.personSpec(), false)
	s.Require().NoError(err)
	s.Equal("FAY", res.One().ToMap()["name"])
	s.Nil(res.Many())
	s.True(res.Errors.Empty())

	res, err = m.Marshal(s.ctx, []any{map[string]any{"name": "gil"}}, s.personSpec(), true)
	s.Require().NoError(err)
	s.Len(res.Many(), 1)
	s.Nil(res.One())

	res, err = m.Marshal(s.ctx, map[string]any{}, s.personSpec(), true)
	s.Nil(res)
	s.ErrorIs(err, merr.ErrNotSequence)
}

func (s *MarshallerSuite) TestBoundLogger() {
	m := New(WithLogger(log.With(log.FieldComponent("marshaller"))))
	s.NotNil(m.Logger())
	_, _, err := m.MarshalOne(log.WithModule(s.ctx, "test"), map[string]any{}, MustFieldSpec(
		Field{Name: "age", Handler: requiredHandler},
	))
	s.NoError(err)
}

func (s *MarshallerSuite) TestLoadOnlySkipped() {
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "password", Handler: identityHandler, LoadOnly: true},
		Field{Name: "id", Handler: identityHandler, DumpOnly: true},
	)
	out, errs, err := New(WithOnly("name", "password")).MarshalOne(s.ctx,
		map[string]any{"name": "hal", "password": "secret", "id": 1}, spec)
	s.Require().NoError(err)
	s.Empty(errs)
	s.Equal([]string{"name"}, out.Keys())

	_, err = NewFieldSpec(Field{Name: "x", Handler: identityHandler, LoadOnly: true, DumpOnly: true})
	s.ErrorIs(err, merr.ErrInvalidFieldSpec)
}

func (s *MarshallerSuite) TestNestedMarshaller() {
	m := New(WithOnly("name", "owner"), WithPrefix("p_"), WithStrict(true), WithParallelism(4))
	inner := MustFieldSpec(
		Field{Name: "id", Handler: identityHandler},
		Field{Name: "role", Handler: requiredHandler},
	)
	spec := MustFieldSpec(
		Field{Name: "name", Handler: upperHandler},
		Field{Name: "owner", Handler: subHandler{m: m.Nested(), spec: inner}},
		Field{Name: "extra", Handler: identityHandler},
	)

	calls := metrics.MarshalCallsTotal.WithLabelValues(metrics.ModeOne, metrics.StatusSuccess)
	items := metrics.MarshalItemsTotal.WithLabelValues(metrics.ModeOne)
	beforeCalls, beforeItems := testutil.ToFloat64(calls), testutil.ToFloat64(items)

	obj := map[string]any{"name": "ida", "owner": map[string]any{"id": 7, "role": "admin"}}
	out, errs, err := m.MarshalOne(s.ctx, obj, spec)
	s.Require().NoError(err)
	s.Empty(errs)
	data, err := jsoniter.Marshal(out)
	s.Require().NoError(err)
	s.JSONEq(`{"p_name":"IDA","p_owner":{"id":7,"role":"admin"}}`, string(data))
	s.Equal(beforeCalls+1, testutil.ToFloat64(calls))
	s.Equal(beforeItems+1, testutil.ToFloat64(items))

	// 嵌套对象的错误挂在父字段下，且不使用顶层前缀
	obj["owner"] = map[string]any{"id": 8}
	out, errs, err = m.MarshalOne(s.ctx, obj, spec)
	s.ErrorIs(err, merr.ErrStrictValidation)
	s.False(out.Has("p_owner"))
	data, err = jsoniter.Marshal(errs)
	s.Require().NoError(err)
	s.JSONEq(`{"p_owner":{"role":["missing data for required field."]}}`, string(data))

	outs, nestedErrs, err := m.Nested().MarshalNestedMany(s.ctx, []any{map[string]any{"id": 1}}, inner)
	s.Require().NoError(err)
	s.Len(outs, 1)
	s.Equal(1, nestedErrs.Count())
	s.Contains(nestedErrs.Items, 0)
}

func TestMarshaller(t *testing.T) {
	suite.Run(t, new(MarshallerSuite))
}
