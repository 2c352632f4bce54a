package metrics

import (
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats 进程和主机资源快照，读取失败的字段保持零值
type SystemStats struct {
	// CPUPercent 进程 CPU 使用率 (0-100 × 核数)
	CPUPercent float64 `json:"cpu_percent"`
	// MemoryBytes 进程常驻内存
	MemoryBytes uint64 `json:"memory_bytes"`
	// MemoryPercent 进程常驻内存占主机内存的比例 (0-100)
	MemoryPercent float64 `json:"memory_percent"`
	// HostCPUPercent 主机整体 CPU 使用率 (0-100)
	HostCPUPercent float64 `json:"host_cpu_percent"`
	// HostMemoryPercent 主机整体内存使用率 (0-100)
	HostMemoryPercent float64 `json:"host_memory_percent"`
	Goroutines        int     `json:"goroutines"`
}

// SystemCollector 抓取时通过 gopsutil 读取资源使用，不需要后台采集循环
type SystemCollector struct {
	proc *process.Process

	cpu, rss, memPct, hostCPU, hostMem, goroutines *prometheus.Desc
}

var _ prometheus.Collector = (*SystemCollector)(nil)

// NewSystemCollector 创建当前进程的资源采集器
func NewSystemCollector(namespace string) (*SystemCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, errors.Wrap(err, "open current process")
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "system", name), help, nil, nil)
	}
	return &SystemCollector{
		proc:       proc,
		cpu:        desc("process_cpu_percent", "Process CPU usage percent."),
		rss:        desc("process_resident_bytes", "Process resident memory in bytes."),
		memPct:     desc("process_memory_percent", "Process resident memory as percent of host memory."),
		hostCPU:    desc("host_cpu_percent", "Host CPU usage percent."),
		hostMem:    desc("host_memory_percent", "Host memory usage percent."),
		goroutines: desc("goroutines", "Number of goroutines."),
	}, nil
}

// Stats 读取一次资源快照
func (c *SystemCollector) Stats() SystemStats {
	var s SystemStats
	if pct, err := c.proc.CPUPercent(); err == nil {
		s.CPUPercent = pct
	}
	vm, vmErr := mem.VirtualMemory()
	if vmErr == nil {
		s.HostMemoryPercent = vm.UsedPercent
	}
	if info, err := c.proc.MemoryInfo(); err == nil {
		s.MemoryBytes = info.RSS
		if vmErr == nil && vm.Total > 0 {
			s.MemoryPercent = float64(info.RSS) / float64(vm.Total) * 100
		}
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		s.HostCPUPercent = pcts[0]
	}
	s.Goroutines = runtime.NumGoroutine()
	return s
}

func (c *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.cpu, c.rss, c.memPct, c.hostCPU, c.hostMem, c.goroutines} {
		ch <- d
	}
}

func (c *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.cpu, s.CPUPercent)
	gauge(c.rss, float64(s.MemoryBytes))
	gauge(c.memPct, s.MemoryPercent)
	gauge(c.hostCPU, s.HostCPUPercent)
	gauge(c.hostMem, s.HostMemoryPercent)
	gauge(c.goroutines, float64(s.Goroutines))
}
