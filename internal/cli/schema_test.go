package cli

import (
	"fmt"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

func (s *CLISuite) TestSchemaCheck() {
	out, err := s.execute("", "schema", "check", "--schema", s.schema)
	s.Require().NoError(err)
	s.Contains(out, "[name age]")

	bad := s.write("bad.yaml", "fields:\n  - name: a\n    type: decimal\n")
	_, err = s.execute("", "schema", "check", "--schema", bad)
	s.ErrorIs(err, merr.ErrSchemaUnknownType)
}

func (s *CLISuite) TestSchemaPushThenMarshal() {
	cfg := s.write("zeus.yaml", fmt.Sprintf(`
log:
  level: error
etcd:
  use-embed: true
  data-dir: %s
  log-level: error
`, s.T().TempDir()))

	out, err := s.execute("", "schema", "push", "--config", cfg, "--schema", s.schema, "--key", "schemas/user.yaml")
	s.Require().NoError(err)
	s.Contains(out, "etcd://schemas/user.yaml")

	out, err = s.execute(`{"name":"ada","age":36}`, "--config", cfg, "--schema", "etcd://schemas/user.yaml")
	s.Require().NoError(err)
	s.Equal(`{"data":{"name":"ADA","age":36},"errors":{}}`+"\n", out)

	_, err = s.execute(`{}`, "--config", cfg, "--schema", "etcd://schemas/absent.yaml")
	s.ErrorIs(err, merr.ErrSchemaNotFound)
}

func (s *CLISuite) TestSchemaPushRequiresFlags() {
	_, err := s.execute("", "schema", "push", "--schema", s.schema)
	s.Error(err)
}
