package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/internal/cli"
	"github.com/lk2023060901/zeus-marshal/pkg/log"
)

func main() {
	// 按容器的 CPU 配额设置 GOMAXPROCS，批量模式的并发度依赖该值
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undo()

	if err := cli.Execute(); err != nil {
		undo()
		os.Exit(1)
	}
}
