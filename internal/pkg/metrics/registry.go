package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registererMu sync.RWMutex
	registerer   prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetRegisterer 替换新建指标与 /metrics 使用的注册表, 返回恢复函数。
// 包内默认指标在 init 时已注册到默认注册表, 不受影响
func SetRegisterer(r prometheus.Registerer) (restore func()) {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	registererMu.Lock()
	previous := registerer
	registerer = r
	registererMu.Unlock()

	return func() {
		registererMu.Lock()
		registerer = previous
		registererMu.Unlock()
	}
}

// GetRegisterer 当前注册表
func GetRegisterer() prometheus.Registerer {
	registererMu.RLock()
	defer registererMu.RUnlock()
	return registerer
}
