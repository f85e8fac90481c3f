package lsp

import (
	"bytes"
	"encoding/json"
)

// LSP 方法名
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodShutdown           = "shutdown"
	MethodExit               = "exit"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidClose           = "textDocument/didClose"
	MethodDiagnostic         = "textDocument/diagnostic"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodConfiguration      = "workspace/configuration"
	MethodWorkDoneProgress   = "window/workDoneProgress/create"
	MethodWorkspaceFolders   = "workspace/workspaceFolders"
)

// 文档诊断报告类型
const (
	ReportKindFull      = "full"
	ReportKindUnchanged = "unchanged"
)

// Position 0 起始的行列位置
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range 文本范围
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DiagnosticSeverity 诊断严重级别，0 表示服务端未提供
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// String 返回小写标签
func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// DiagnosticCode 诊断代码，服务端可能发送字符串、数字或 {"value": ...}
type DiagnosticCode struct {
	Value   string
	Set     bool
	// Numeric 服务端以 JSON 数字发送，编码时原样输出数字
	Numeric bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *DiagnosticCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = DiagnosticCode{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Value, c.Set = s, true
	case '{':
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		return c.UnmarshalJSON(wrapped.Value)
	default:
		// 布尔值等无法识别的代码按缺省处理
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil
		}
		c.Value, c.Set, c.Numeric = n.String(), true, true
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c DiagnosticCode) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	if c.Numeric && json.Valid([]byte(c.Value)) {
		return []byte(c.Value), nil
	}
	return json.Marshal(c.Value)
}

// String 返回代码文本
func (c DiagnosticCode) String() string {
	return c.Value
}

// Diagnostic 单条诊断
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     DiagnosticCode     `json:"code"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// DocumentDiagnosticReport textDocument/diagnostic 的结果
type DocumentDiagnosticReport struct {
	Kind     string       `json:"kind"`
	ResultID string       `json:"resultId,omitempty"`
	Items    []Diagnostic `json:"items,omitempty"`
}

// PublishDiagnosticsParams 服务端推送的诊断
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int64       `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// WorkspaceFolder 工作区目录
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientInfo 客户端标识
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams initialize 请求参数
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ClientInfo            ClientInfo         `json:"clientInfo"`
	RootURI               string             `json:"rootUri"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions map[string]any     `json:"initializationOptions"`
}

// ClientCapabilities 客户端能力声明
type ClientCapabilities struct {
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

// WorkspaceClientCapabilities 工作区能力
type WorkspaceClientCapabilities struct {
	WorkspaceFolders bool                          `json:"workspaceFolders"`
	Configuration    bool                          `json:"configuration"`
	Diagnostic       DiagnosticWorkspaceCapability `json:"diagnostic"`
}

// DiagnosticWorkspaceCapability 工作区诊断能力
type DiagnosticWorkspaceCapability struct {
	RefreshSupport bool `json:"refreshSupport"`
}

// TextDocumentClientCapabilities 文档能力
type TextDocumentClientCapabilities struct {
	Diagnostic DiagnosticClientCapability `json:"diagnostic"`
}

// DiagnosticClientCapability 文档诊断能力
type DiagnosticClientCapability struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

// TextDocumentItem 打开的文档
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int64  `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentIdentifier 文档标识
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// DidOpenTextDocumentParams textDocument/didOpen 参数
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams textDocument/didClose 参数
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentDiagnosticParams textDocument/diagnostic 参数
type DocumentDiagnosticParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// newInitializeParams 构造握手参数
func newInitializeParams(pid int, root string, client ClientInfo) InitializeParams {
	uri := FileURI(root)
	return InitializeParams{
		ProcessID:        pid,
		ClientInfo:       client,
		RootURI:          uri,
		WorkspaceFolders: []WorkspaceFolder{{URI: uri, Name: folderName(root)}},
		Capabilities: ClientCapabilities{
			Workspace: WorkspaceClientCapabilities{
				WorkspaceFolders: true,
				Configuration:    true,
				Diagnostic:       DiagnosticWorkspaceCapability{RefreshSupport: true},
			},
			TextDocument: TextDocumentClientCapabilities{
				Diagnostic: DiagnosticClientCapability{DynamicRegistration: false},
			},
		},
		InitializationOptions: map[string]any{},
	}
}
