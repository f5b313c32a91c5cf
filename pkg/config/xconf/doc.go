// Package xconf 基于 koanf 加载 YAML/JSON 配置，并支持文件变更后自动重载。
//
// xconf 只负责加载、反序列化和重载。默认值、校验和环境变量覆盖由调用方处理。
//
//	src, err := xconf.Load("/etc/finsight/gate.yaml")
//	var cfg AppConfig
//	err = src.Unmarshal("", &cfg)
//
// # 重载
//
// Reload 解析成功后才原子替换内部的 koanf 实例，解析失败时保留旧配置。
// Koanf() 返回的实例是快照，Reload 后不会更新，需要时重新调用。
//
// # 监视
//
// Watch 监视配置文件所在目录（兼容编辑器先写临时文件再 rename 的保存方式），
// 变更经过防抖后触发 Reload 并回调。Run 阻塞直到 ctx 取消。
package xconf
