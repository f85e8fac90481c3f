// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、JSON-RPC、子进程生命周期与诊断结果四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 的方法对 nil 接收者安全，关闭指标时调用方无需判空。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - JSON-RPC 指标：按 method/status 统计请求与往返耗时，
    服务端发起的请求按是否已处理计数，非法帧丢弃计数。
  - 子进程指标：启动次数、按原因统计的退出次数、活跃客户端 Gauge。
  - 诊断指标：按严重级别统计的诊断条数与端到端耗时。
*/
package metrics
