package metrics

import "sync/atomic"

// DefaultServiceName 未配置时各指标 service 标签的取值
const DefaultServiceName = "tracker"

var serviceName atomic.Pointer[string]

// SetServiceName 模块 OnInit 时设置, 空串恢复默认
func SetServiceName(name string) {
	if name == "" {
		serviceName.Store(nil)
		return
	}
	serviceName.Store(&name)
}

func GetServiceName() string {
	if p := serviceName.Load(); p != nil {
		return *p
	}
	return DefaultServiceName
}

// normalizeServiceName 记录指标时 service 为空取全局名称
func normalizeServiceName(name string) string {
	if name != "" {
		return name
	}
	return GetServiceName()
}
