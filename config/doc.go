// Package config 提供 A2A Engine 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量以 A2AENGINE_ 为前缀，层级之间用下划线连接，
// 例如 A2AENGINE_CHECKPOINT_TTL=24h。
package config
