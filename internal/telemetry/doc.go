// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 a2aengine 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 会话事件处理器通过 Providers.Tracer 为每个事件创建 span。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
