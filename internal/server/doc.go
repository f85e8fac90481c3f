// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭、关闭 Hook 与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
serve 子命令用它承载诊断接口，关闭时先排空 HTTP 请求，再依次执行
注册的 Hook（停止所有 kotlin-lsp 子进程、刷新遥测数据）。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown/OnShutdown。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。
  - Hook：关闭时执行的命名清理函数。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在 ShutdownTimeout 内完成请求排空与全部 Hook，
    Hook 失败不会跳过后续 Hook。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM、服务错误或 ctx 结束。
  - 状态查询：IsRunning/Addr，Addr 在启动后返回实际监听地址。
*/
package server
