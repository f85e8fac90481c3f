// Package config 提供 kotlin-lsp 桥接服务的配置管理。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量键名形如 KOTLINLSP_LSP_COMMAND。
package config
