package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
)

// GetCPUNum 返回主机逻辑 CPU 数量，gopsutil 读取失败时退回 runtime.NumCPU。
func GetCPUNum() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		log.Warn("failed to get cpu counts", zap.Error(err))
		return runtime.NumCPU()
	}
	return n
}

// GetUsableCPUNum 返回当前进程可用的 CPU 数量，即 GOMAXPROCS 与主机核数的较小值。
// 容器中 GOMAXPROCS 由 automaxprocs 按 cgroup 配额设置。
func GetUsableCPUNum() int {
	return min(runtime.GOMAXPROCS(0), GetCPUNum())
}

// GetMemoryCount 返回主机物理内存总量（字节），获取失败时返回 0。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}
