// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 diagnostics 是面向调用方的 Kotlin 诊断工具层。

# 概述

Tool 负责参数校验、路径解析（去掉 @ 前缀，相对路径基于 cwd）、
工作区根目录探测、严重级别过滤以及报告格式化；协议交互委托给
实现了 Diagnoser 接口的对象，通常是 lsp.Registry。

# 使用

	tool := diagnostics.NewTool(registry, diagnostics.DefaultConfig(), logger)
	result, err := tool.Run(ctx, cwd, diagnostics.Params{Path: "@src/Main.kt"})
	if err != nil {
		return err
	}
	fmt.Println(result.Text)

# 报告格式

报告依次给出工作区、文件、总数统计，然后每条诊断一行：

	- [error] 3:5 (UNRESOLVED_REFERENCE) [kotlin] Unresolved reference: foo

坐标由协议的 0 起始行列转换为 1 起始。
*/
package diagnostics
