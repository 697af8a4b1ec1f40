package browser

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/qianli/internal/utils"
)

// ResourceMonitor 系统资源监控器
// 职责: 根据可用内存计算并发标签页上限,避免在低内存机器上把浏览器压垮
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 系统总内存(字节)
	totalMemory uint64

	// 缓存的MaxTabs结果,避免每次获取标签页都查询系统内存
	cachedMaxTabs int
	lastCacheTime time.Time
	cacheMu       sync.Mutex
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	TabMemoryUsage      int64 // 单个标签页平均内存消耗(字节)
	MaxTabsLimit        int   // 绝对最大标签页数
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.TabMemoryUsage == 0 {
		config.TabMemoryUsage = 100 * 1024 * 1024 // 100MB
	}
	if config.SafetyReserveMemory == 0 {
		config.SafetyReserveMemory = 1024 * 1024 * 1024 // 1GB
	}
	if config.MaxTabsLimit == 0 {
		config.MaxTabsLimit = 4
	}

	// 获取系统总内存(使用gopsutil获取真实系统内存)
	var totalMem uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败,使用默认值4GB: %v", err)
		totalMem = 4 * 1024 * 1024 * 1024
	} else {
		totalMem = vmStat.Total
		utils.Debugf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	return &ResourceMonitor{
		config:      config,
		totalMemory: totalMem,
	}
}

// MaxTabs 计算当前允许的并发标签页上限
// 结果缓存5秒,上限始终落在[1, MaxTabsLimit]区间内
func (m *ResourceMonitor) MaxTabs() int {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if time.Since(m.lastCacheTime) < 5*time.Second && m.cachedMaxTabs > 0 {
		return m.cachedMaxTabs
	}

	available := int64(m.totalMemory)
	if vmStat, err := mem.VirtualMemory(); err == nil {
		available = int64(vmStat.Available)
	}

	budget := available - m.config.SafetyReserveMemory
	tabs := int(budget / m.config.TabMemoryUsage)
	if tabs < 1 {
		tabs = 1
	}
	if tabs > m.config.MaxTabsLimit {
		tabs = m.config.MaxTabsLimit
	}

	m.cachedMaxTabs = tabs
	m.lastCacheTime = time.Now()
	return tabs
}
