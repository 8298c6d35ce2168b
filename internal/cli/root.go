// Package cli 提供 zeus-marshal 的命令行入口。
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/zeus-marshal/application"
	"github.com/lk2023060901/zeus-marshal/pkg/compressor"
	"github.com/lk2023060901/zeus-marshal/pkg/config"
	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/serializer"
	"github.com/lk2023060901/zeus-marshal/pkg/util/etcd"
	"github.com/lk2023060901/zeus-marshal/pkg/util/hardware"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// Version 在构建时注入。
var Version = "0.1.0"

type flags struct {
	config      string
	schema      string
	input       string
	output      string
	format      string
	compression string
	many        bool
	load        bool
	strict      bool
	prefix      string
	only        []string
	exclude     []string
	parallelism int
}

// NewRootCmd 创建根命令。registry 为 nil 时使用 prometheus.DefaultRegisterer。
func NewRootCmd(registry prometheus.Registerer) *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:   "zeus-marshal",
		Short: "Marshal JSON/YAML documents through a declarative field schema",
		Long: `zeus-marshal reads a JSON or YAML document, resolves every field declared
in the schema against it and writes the ordered result together with the
per-field validation errors.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f, registry)
		},
	}

	fs := rootCmd.Flags()
	fs.StringVar(&f.config, "config", "", "config file (default: $ZEUS_CONFIG_FILE_PATH or ./config.yaml)")
	fs.StringVarP(&f.schema, "schema", "s", "", "schema file describing the output fields")
	fs.StringVarP(&f.input, "input", "i", "-", "input document (.json/.yaml/.yml), - for stdin")
	fs.StringVarP(&f.output, "output", "o", "", "output file, stdout when empty")
	fs.StringVarP(&f.format, "format", "f", "", "output format (json|jsoniter|proto)")
	fs.StringVar(&f.compression, "compression", "", "output compression (none|zstd)")
	fs.BoolVar(&f.many, "many", false, "treat the input as a list of objects")
	fs.BoolVar(&f.load, "load", false, "validate and load the input into the schema fields instead of marshalling it")
	fs.BoolVar(&f.strict, "strict", false, "exit with an error when any field fails validation")
	fs.StringVar(&f.prefix, "prefix", "", "prefix added to every output key")
	fs.StringSliceVar(&f.only, "only", nil, "only output the given fields")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "skip the given fields")
	fs.IntVarP(&f.parallelism, "parallelism", "p", 0, "workers used in many mode, negative for all CPUs")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{serializer.FormatJSON, serializer.FormatJSONIter, serializer.FormatProto}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCommand(), newSchemaCommand(registry))
	return rootCmd
}

// Execute 运行根命令。
func Execute() error {
	defer etcd.StopEtcdServer()
	if err := NewRootCmd(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zeus-marshal %s\n", Version)
		},
	}
}

// applyFlags 用显式指定的命令行参数覆盖配置。
func applyFlags(fs *pflag.FlagSet, f *flags, cfg *config.Config) {
	changed := fs.Changed
	if changed("schema") {
		cfg.Schema = f.schema
	}
	if changed("output") {
		cfg.Output.Path = f.output
	}
	if changed("format") {
		cfg.Output.Format = f.format
	}
	if changed("compression") {
		cfg.Output.Compression = f.compression
	}
	if changed("strict") {
		cfg.Marshal.Strict = f.strict
	}
	if changed("prefix") {
		cfg.Marshal.Prefix = f.prefix
	}
	if changed("only") {
		cfg.Marshal.Only = f.only
	}
	if changed("exclude") {
		cfg.Marshal.Exclude = f.exclude
	}
	if changed("parallelism") {
		cfg.Marshal.Parallelism = f.parallelism
	}
	// 结果写到标准输出时，日志改写到标准错误
	if cfg.Output.Path == "" && cfg.Log.Stdout {
		cfg.Log.Stdout = false
		cfg.Log.Stderr = true
	}
}

func run(cmd *cobra.Command, f *flags, registry prometheus.Registerer) error {
	cfg, err := config.Load(application.ResolveConfigPath(f.config))
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), f, cfg)

	app := application.New(registry)
	if err := app.RunWithConfig(cfg); err != nil {
		return err
	}
	defer app.Close()

	ctx := log.WithModule(cmd.Context(), "cli")
	log.Ctx(ctx).Debug("host resources",
		zap.Int("cpus", hardware.GetCPUNum()),
		zap.Uint64("memory", hardware.GetMemoryCount()))

	input, err := readInput(cmd.InOrStdin(), f.input)
	if err != nil {
		return err
	}

	m := app.Marshaller()
	spec, err := app.FieldSpec(ctx, m)
	if err != nil {
		return err
	}

	var (
		result     *marshal.Result
		marshalErr error
	)
	if f.load {
		result, marshalErr = app.Unmarshaller().Unmarshal(ctx, input, spec, f.many)
	} else {
		result, marshalErr = m.Marshal(ctx, input, spec, f.many)
	}
	if marshalErr != nil && merr.IsFatal(marshalErr) {
		return marshalErr
	}

	if err := writeResult(cmd.OutOrStdout(), cfg.Output, result); err != nil {
		return err
	}
	// 严格模式下结果已经输出，仍以错误退出
	return marshalErr
}

// readInput 读取输入文档。扩展名为 .yaml/.yml 时按 YAML 解析，其余按 JSON 解析。
func readInput(stdin io.Reader, path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read input %s", path)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = sonic.ConfigStd.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode input %s", path)
	}
	return doc, nil
}

// writeResult 以 {"data": ..., "errors": ...} 的形式编码并写出结果。
func writeResult(stdout io.Writer, out config.OutputConfig, result *marshal.Result) error {
	s, err := serializer.ByName(out.Format)
	if err != nil {
		return err
	}
	c, err := compressor.ByName(out.Compression)
	if err != nil {
		return err
	}
	if z, ok := c.(*compressor.ZstdCompressor); ok {
		defer z.Close()
	}

	payload := marshal.NewMapping(2)
	payload.Set("data", result.Data)
	payload.Set("errors", result.Errors)

	data, err := s.Marshal(payload)
	if err != nil {
		return err
	}
	data, err = c.Compress(nil, data)
	if err != nil {
		return err
	}

	if out.Path == "" {
		_, err = stdout.Write(data)
		if err == nil && out.Compression == "none" && out.Format != serializer.FormatProto {
			_, err = io.WriteString(stdout, "\n")
		}
		return err
	}
	return os.WriteFile(out.Path, data, 0o644)
}

