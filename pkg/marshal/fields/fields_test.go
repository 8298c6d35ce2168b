package fields

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

type account struct {
	ID      int
	Email   string
	Created time.Time
	Owner   any
	Scores  []any
}

type owner struct {
	Name string
	Age  any
}

func (a account) Domain() string {
	for i := len(a.Email) - 1; i >= 0; i-- {
		if a.Email[i] == '@' {
			return a.Email[i+1:]
		}
	}
	return ""
}

func (a account) Verify() (bool, error) {
	if a.Email == "" {
		return false, marshal.NewValidationError("email not set.")
	}
	return true, nil
}

type FieldsSuite struct {
	suite.Suite
	missing *marshal.Missing
}

func (s *FieldsSuite) SetupTest() {
	s.missing = marshal.NewMissing()
}

func (s *FieldsSuite) serialize(h marshal.FieldHandler, value any) (any, error) {
	return h.Serialize(value, "field", nil)
}

func (s *FieldsSuite) TestMissingPassthrough() {
	for _, h := range []marshal.FieldHandler{
		Raw(), String(), Int(), Float(), Bool(), Time(""), Upper(), Lower(),
		List(Int()), Nullable(Int()), Nested(nil, marshal.MustFieldSpec()),
	} {
		out, err := s.serialize(h, s.missing)
		s.NoError(err)
		s.Same(s.missing, out)
	}
}

func (s *FieldsSuite) TestScalars() {
	cases := []struct {
		h      marshal.FieldHandler
		in     any
		expect any
	}{
		{String(), 12, "12"},
		{Int(), "42", int64(42)},
		{Int(), 3.0, int64(3)},
		{Float(), "1.5", 1.5},
		{Bool(), "true", true},
		{Bool(), 0, false},
		{Upper(), "abc", "ABC"},
		{Lower(), "AbC", "abc"},
		{Raw(), []int{1}, []int{1}},
		{Int(), nil, nil},
	}
	for _, c := range cases {
		out, err := s.serialize(c.h, c.in)
		s.NoError(err)
		s.Equal(c.expect, out)
	}
}

func (s *FieldsSuite) TestScalarValidation() {
	for _, c := range []struct {
		h   marshal.FieldHandler
		in  any
		msg string
	}{
		{Int(), "abc", msgInvalidInteger},
		{Float(), struct{}{}, msgInvalidNumber},
		{Bool(), "maybe", msgInvalidBoolean},
		{String(), struct{}{}, msgInvalidString},
		{Time(""), "yesterday", msgInvalidTime},
	} {
		_, err := s.serialize(c.h, c.in)
		s.True(merr.IsValidation(err))
		var verr *marshal.ValidationError
		s.Require().True(errors.As(err, &verr))
		s.Equal([]string{c.msg}, verr.Messages)
	}
}

func (s *FieldsSuite) TestTime() {
	t := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	out, err := s.serialize(Time(""), t)
	s.NoError(err)
	s.Equal("2024-05-06T07:08:09Z", out)

	out, err = s.serialize(Time(time.DateOnly), "2024-05-06T07:08:09Z")
	s.NoError(err)
	s.Equal("2024-05-06", out)
}

func (s *FieldsSuite) TestRequiredAndDefault() {
	_, err := s.serialize(Required(Int()), s.missing)
	var verr *marshal.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Equal([]string{MsgRequired}, verr.Messages)

	out, err := s.serialize(Required(Int()), "7")
	s.NoError(err)
	s.Equal(int64(7), out)

	out, err = s.serialize(Default("n/a", String()), s.missing)
	s.NoError(err)
	s.Equal("n/a", out)

	out, err = s.serialize(Default("n/a", String()), "set")
	s.NoError(err)
	s.Equal("set", out)
}

func (s *FieldsSuite) TestNullable() {
	called := false
	h := Nullable(marshal.HandlerFunc(func(value any, _ string, _ any) (any, error) {
		called = true
		return value, nil
	}))
	out, err := s.serialize(h, nil)
	s.NoError(err)
	s.Nil(out)
	s.False(called)
}

func (s *FieldsSuite) TestFuncConstantMethod() {
	acc := account{ID: 1, Email: "a@example.com"}

	out, err := Func(func(obj any) (any, error) {
		return obj.(account).ID * 10, nil
	}).Serialize(s.missing, "x", acc)
	s.NoError(err)
	s.Equal(10, out)

	out, err = Constant("v1").Serialize(s.missing, "version", acc)
	s.NoError(err)
	s.Equal("v1", out)

	out, err = Method("Domain").Serialize(s.missing, "domain", acc)
	s.NoError(err)
	s.Equal("example.com", out)

	out, err = Method("Verify").Serialize(s.missing, "verified", acc)
	s.NoError(err)
	s.Equal(true, out)

	_, err = Method("Verify").Serialize(s.missing, "verified", account{})
	s.True(merr.IsValidation(err))

	_, err = Method("Nope").Serialize(s.missing, "x", acc)
	s.Error(err)
	s.False(merr.IsValidation(err))

	_, err = Method("Domain").Serialize(s.missing, "x", nil)
	s.Error(err)
}

func (s *FieldsSuite) TestList() {
	out, err := s.serialize(List(Int()), []string{"1", "2"})
	s.NoError(err)
	s.Equal([]any{int64(1), int64(2)}, out)

	_, err = s.serialize(List(Int()), []any{"1", "x", "y"})
	var verr *marshal.ValidationError
	s.Require().True(errors.As(err, &verr))
	data, jerr := jsoniter.Marshal(verr)
	s.Require().NoError(jerr)
	s.JSONEq(`{"1":["not a valid integer."],"2":["not a valid integer."]}`, string(data))

	_, err = s.serialize(List(Int()), "not a list")
	s.True(merr.IsValidation(err))

	boom := errors.New("boom")
	_, err = s.serialize(List(Func(func(any) (any, error) { return nil, boom })), []int{1})
	s.ErrorIs(err, boom)
}

func (s *FieldsSuite) TestNestedInMarshaller() {
	ownerSpec := marshal.MustFieldSpec(
		marshal.Field{Name: "name", Key: marshal.MustPathKey("Name"), Handler: Upper()},
		marshal.Field{Name: "age", Key: marshal.MustPathKey("Age"), Handler: Required(Int())},
	)
	spec := marshal.MustFieldSpec(
		marshal.Field{Name: "id", Key: marshal.MustPathKey("ID"), Handler: Int()},
		marshal.Field{Name: "domain", Handler: Method("Domain")},
		marshal.Field{Name: "created", Key: marshal.MustPathKey("Created"), Handler: Time(time.DateOnly)},
		marshal.Field{Name: "owner", Key: marshal.MustPathKey("Owner"), Handler: Nested(nil, ownerSpec)},
		marshal.Field{Name: "scores", Key: marshal.MustPathKey("Scores"), Handler: List(Float())},
		marshal.Field{Name: "nickname", Handler: String()},
	)
	acc := account{
		ID:      9,
		Email:   "b@zeus.dev",
		Created: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Owner:   &owner{Name: "bo", Age: "33"},
		Scores:  []any{1, "2.5"},
	}

	m := marshal.New()
	out, errs, err := m.MarshalOne(context.Background(), acc, spec)
	s.Require().NoError(err)
	s.Empty(errs)
	data, err := jsoniter.Marshal(out)
	s.Require().NoError(err)
	s.Equal(`{"id":9,"domain":"zeus.dev","created":"2023-01-02","owner":{"name":"BO","age":33},"scores":[1,2.5]}`, string(data))

	acc.Owner = map[string]any{"Name": "bo"}
	out, errs, err = m.MarshalOne(context.Background(), acc, spec)
	s.Require().NoError(err)
	s.False(out.Has("owner"))
	data, err = jsoniter.Marshal(errs)
	s.Require().NoError(err)
	s.JSONEq(`{"owner":{"age":["missing data for required field."]}}`, string(data))

	acc.Owner = nil
	out, _, err = m.MarshalOne(context.Background(), acc, spec)
	s.Require().NoError(err)
	v, ok := out.Get("owner")
	s.True(ok)
	s.Nil(v)
}

func (s *FieldsSuite) TestNestedList() {
	spec := marshal.MustFieldSpec(marshal.Field{Name: "n", Handler: Required(Int())})
	h := NestedList(nil, spec)

	out, err := s.serialize(h, []map[string]any{{"n": "1"}, {"n": 2}})
	s.NoError(err)
	items, ok := out.([]*marshal.Mapping)
	s.Require().True(ok)
	s.Len(items, 2)

	_, err = s.serialize(h, []map[string]any{{"n": "1"}, {}})
	var verr *marshal.ValidationError
	s.Require().True(errors.As(err, &verr))
	data, jerr := jsoniter.Marshal(verr)
	s.Require().NoError(jerr)
	s.JSONEq(`{"1":{"n":["missing data for required field."]}}`, string(data))

	_, err = s.serialize(h, map[string]any{})
	s.True(merr.IsValidation(err))
}

type ctxKey struct{}

// ctxEcho 从 ctx 中读取 ctxKey 的值作为输出。
type ctxEcho struct{}

func (ctxEcho) Serialize(any, string, any) (any, error) {
	return "no-ctx", nil
}

func (ctxEcho) SerializeContext(ctx context.Context, _ any, _ string, _ any) (any, error) {
	return ctx.Value(ctxKey{}), nil
}

func (s *FieldsSuite) TestNestedIgnoresTopLevelOptions() {
	ownerSpec := marshal.MustFieldSpec(marshal.Field{Name: "id", Handler: Int()})
	obj := map[string]any{
		"name":   "ada",
		"owner":  map[string]any{"id": 7},
		"owners": []any{map[string]any{"id": "8"}},
	}
	for _, c := range []struct {
		opts []marshal.Option
		keys []string
	}{
		{[]marshal.Option{marshal.WithOnly("name", "owner")}, []string{"name", "owner"}},
		{[]marshal.Option{marshal.WithExclude("id")}, []string{"name", "owner", "owners"}},
		{[]marshal.Option{marshal.WithPrefix("p_")}, []string{"p_name", "p_owner", "p_owners"}},
		{[]marshal.Option{marshal.WithStrict(true), marshal.WithSkipMissing(true)}, []string{"name", "owner", "owners"}},
	} {
		m := marshal.New(c.opts...)
		spec := marshal.MustFieldSpec(
			marshal.Field{Name: "name", Handler: String()},
			marshal.Field{Name: "owner", Handler: Nested(m, ownerSpec)},
			marshal.Field{Name: "owners", Handler: NestedList(m, ownerSpec)},
		)
		out, errs, err := m.MarshalOne(context.Background(), obj, spec)
		s.Require().NoError(err)
		s.Empty(errs)
		s.Equal(c.keys, out.Keys())

		owner, ok := out.Get(c.keys[1])
		s.Require().True(ok)
		s.Equal(map[string]any{"id": int64(7)}, owner.(*marshal.Mapping).ToMap())
	}
}

func (s *FieldsSuite) TestNestedUsesParentContext() {
	inner := marshal.MustFieldSpec(marshal.Field{Name: "trace", Handler: ctxEcho{}})
	spec := marshal.MustFieldSpec(
		marshal.Field{Name: "one", Handler: Nested(nil, inner)},
		marshal.Field{Name: "many", Handler: NestedList(nil, inner)},
		marshal.Field{Name: "list", Handler: List(Required(ctxEcho{}))},
	)
	obj := map[string]any{
		"one":  map[string]any{},
		"many": []any{map[string]any{}},
		"list": []int{1},
	}
	ctx := context.WithValue(context.Background(), ctxKey{}, "parent")
	out, errs, err := marshal.New().MarshalOne(ctx, obj, spec)
	s.Require().NoError(err)
	s.Empty(errs)
	data, err := jsoniter.Marshal(out)
	s.Require().NoError(err)
	s.JSONEq(`{"one":{"trace":"parent"},"many":[{"trace":"parent"}],"list":["parent"]}`, string(data))
}

func (s *FieldsSuite) deserialize(h marshal.FieldHandler, value any) (any, error) {
	return marshal.DeserializeWith(context.Background(), h, value, "field", nil)
}

func (s *FieldsSuite) TestDeserialize() {
	cases := []struct {
		h      marshal.FieldHandler
		in     any
		expect any
	}{
		{String(), 12, "12"},
		{Int(), "42", int64(42)},
		{Upper(), "abc", "ABC"},
		{Time(time.DateOnly), "2024-05-06", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{Nullable(Int()), nil, nil},
		{Default(3, Int()), s.missing, int64(3)},
		{Constant("fixed"), "ignored", "fixed"},
		{Func(func(any) (any, error) { return "dump only", nil }), "kept", "kept"},
		{Method("Domain"), "kept", "kept"},
		{List(Int()), []any{"1", 2}, []any{int64(1), int64(2)}},
	}
	for _, c := range cases {
		out, err := s.deserialize(c.h, c.in)
		s.NoError(err)
		s.Equal(c.expect, out)
	}

	_, err := s.deserialize(Required(Int()), s.missing)
	s.True(merr.IsValidation(err))
	_, err = s.deserialize(Time(""), "yesterday")
	s.True(merr.IsValidation(err))
}

func (s *FieldsSuite) TestNestedUnmarshal() {
	ownerSpec := marshal.MustFieldSpec(
		marshal.Field{Name: "name", Handler: Required(String())},
		marshal.Field{Name: "age", Handler: Int(), Required: true},
	)
	spec := marshal.MustFieldSpec(
		marshal.Field{Name: "owner", Handler: Nested(nil, ownerSpec)},
		marshal.Field{Name: "members", Handler: NestedList(nil, ownerSpec)},
	)
	u := marshal.NewUnmarshaller(marshal.WithPrefix("ignored_"))
	out, errs, err := u.UnmarshalOne(context.Background(), map[string]any{
		"owner":   map[string]any{"name": "bo", "age": "33"},
		"members": []any{map[string]any{"name": "al", "age": 1}, map[string]any{"name": "cy"}},
	}, spec)
	s.Require().NoError(err)
	owner, ok := out.Get("owner")
	s.Require().True(ok)
	s.Equal(map[string]any{"name": "bo", "age": int64(33)}, owner.(*marshal.Mapping).ToMap())
	s.False(out.Has("members"))
	data, err := jsoniter.Marshal(errs)
	s.Require().NoError(err)
	s.JSONEq(`{"members":{"1":{"age":["missing data for required field."]}}}`, string(data))
}

func TestFields(t *testing.T) {
	suite.Run(t, new(FieldsSuite))
}
