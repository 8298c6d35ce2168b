package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/zeus-marshal/application"
	"github.com/lk2023060901/zeus-marshal/pkg/config"
	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/schema"
)

type schemaFlags struct {
	config string
	file   string
	key    string
}

func newSchemaCommand(registry prometheus.Registerer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas stored in etcd",
	}
	cmd.AddCommand(newSchemaPushCommand(registry), newSchemaCheckCommand())
	return cmd
}

func newSchemaPushCommand(registry prometheus.Registerer) *cobra.Command {
	f := &schemaFlags{}
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Validate a schema file and store it in etcd",
		Example: `  zeus-marshal schema push -s user.yaml -k schemas/user.yaml
  zeus-marshal -s etcd://schemas/user.yaml -i users.json --many`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(f.file)
			if err != nil {
				return errors.Wrapf(err, "read schema %s", f.file)
			}
			cfg, err := config.Load(application.ResolveConfigPath(f.config))
			if err != nil {
				return err
			}
			if cfg.Log.Stdout {
				cfg.Log.Stdout = false
				cfg.Log.Stderr = true
			}
			app := application.New(registry)
			if err := app.RunWithConfig(cfg); err != nil {
				return err
			}
			defer app.Close()

			ctx := log.WithModule(cmd.Context(), "cli")
			sch, err := app.PushSchema(ctx, f.key, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed schema %q (%d fields) to %s%s\n",
				sch.Name, len(sch.Fields), schema.EtcdScheme, schema.EtcdKey(f.key))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "config file holding the etcd section")
	fs.StringVarP(&f.file, "schema", "s", "", "local schema file (.yaml/.yml/.json)")
	fs.StringVarP(&f.key, "key", "k", "", "etcd key, the extension selects yaml or json")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newSchemaCheckCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a local schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sch, err := schema.Load(file)
			if err != nil {
				return err
			}
			spec, err := sch.Build(nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %q ok: %v\n", sch.Name, spec.Names())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "schema", "s", "", "schema file (.yaml/.yml/.json)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
