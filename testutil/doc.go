// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 kotlin-lsp 桥接测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 等待辅助: WaitForChannel，带超时接收通道值
  - 工作区辅助: WriteFile / NewGradleProject，构造带标记文件的临时工作区
  - 数据工具: MustParseJSON / AssertJSONEqual / Lines
  - 基准辅助: BenchmarkHelper 封装 testing.B 常用操作

# 子包

  - testutil/mocks: MockClients，模拟客户端注册表的 Diagnose / Status / Restart，
    记录调用并支持错误注入
  - testutil/fixtures: 预置 Kotlin 源码与错误、警告、提示诊断样例

# 使用示例

	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})
	clients := mocks.NewMockClients().WithDiagnostics(fixtures.MixedDiagnostics()...)
	tool := diagnostics.NewTool(clients, diagnostics.DefaultConfig(), nil)
*/
package testutil
