// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 lsp 提供驱动 kotlin-lsp 子进程的 JSON-RPC 客户端，
通过子进程标准输入输出完成握手、拉取诊断与优雅关闭。

# 概述

本包只实现获取诊断所需的最小协议面：initialize / initialized、
textDocument/didOpen、textDocument/diagnostic、textDocument/didClose、
shutdown / exit。每个工作区根目录对应一个子进程，所有协议交互在
同一工作区内严格串行执行。

# 核心类型

  - FrameCodec：Content-Length 帧编解码器，增量消费字节流，
    不完整的帧留待下一块数据
  - Transport：持有子进程，负责启动、写入、stderr 采集与终止
  - Correlator：分配递增请求 ID，跟踪未完成请求的超时与结算
  - ServerRequestHandler：应答服务端发起的 workspace/configuration 等请求
  - Session：握手状态机、FIFO 操作队列与 Diagnose 操作
  - Registry：工作区根目录到 Session 的映射，保证一个根目录一个子进程

# 错误语义

  - FramingError：帧头缺少 Content-Length，当前字节流不可恢复
  - ResponseError：服务端返回 error 载荷，仅影响对应请求
  - TimeoutError：请求超过截止时间，进程保持运行
  - ProcessError：启动失败、意外退出或进程未运行，拒绝该进程上所有请求

所有错误都会附带最近最多 8 行子进程 stderr 输出。

# 使用示例

	registry := lsp.NewRegistry(lsp.DefaultOptions(), logger, nil)
	defer registry.StopAll(context.Background())

	session, err := registry.Client("/path/to/project")
	if err != nil {
		return err
	}
	diags, err := session.Diagnose(ctx, "/path/to/project/src/Main.kt", source)
*/
package lsp
