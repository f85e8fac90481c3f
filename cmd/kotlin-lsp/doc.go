// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 kotlin-lsp 桥接程序入口。

# 概述

cmd/kotlin-lsp 在命令行或 HTTP 上暴露 Kotlin 诊断能力。每个工作区
对应一个 kotlin-lsp 子进程，由 lsp.Registry 统一管理。程序支持 YAML
配置文件加载、结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 子命令

  - diagnose: 对单个文件拉取诊断并打印报告，出错时退出码为 1
  - serve: 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅关闭
  - status: 打印客户端状态，指定 --addr 时查询运行中的服务
  - version / help

# HTTP 接口

  - POST /v1/diagnostics        诊断参数（JSON）→ 诊断结果
  - GET  /v1/clients            当前客户端状态
  - POST /v1/clients/restart    停止全部客户端，下次请求时重新启动
  - GET  /health                健康检查
  - GET  /metrics               Prometheus 指标

# 中间件

Recovery → RequestID → RequestLogger → RateLimiter（基于 IP），
启用时追加 Metrics 与 OTelTracing。

# 关闭顺序

停止 HTTP → Registry.Close（向每个子进程发送 shutdown/exit）→ 遥测 Shutdown。
版本信息 Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
