// Package telemetry 负责 OpenTelemetry SDK 的初始化与关闭。
//
// 启用后通过 OTLP gRPC 导出 lsp.Diagnose、lsp.request 以及 HTTP 请求 span，
// 采样使用 ParentBased(TraceIDRatioBased)。测试可通过 WithSpanExporter /
// WithMetricReader 注入内存导出器。禁用时返回空 Providers，全局 provider 保持 noop。
package telemetry
