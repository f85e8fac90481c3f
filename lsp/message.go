package lsp

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// JSONRPCVersion JSON-RPC 协议版本
const JSONRPCVersion = "2.0"

// Message JSON-RPC 2.0 消息
//
// 带 id 且无 method 为响应，带 id 与 method 为请求，只有 method 为通知。
// ID 保留原始 JSON，服务端发起的请求可能使用字符串 id，应答时原样回写。
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// HasID 消息是否携带 id
func (m *Message) HasID() bool {
	return len(m.ID) > 0
}

// IsRequest 是否为请求
func (m *Message) IsRequest() bool {
	return m.HasID() && m.Method != ""
}

// IsResponse 是否为响应
func (m *Message) IsResponse() bool {
	return m.HasID() && m.Method == ""
}

// IsNotification 是否为通知
func (m *Message) IsNotification() bool {
	return !m.HasID() && m.Method != ""
}

// IntID 解析数字 id，兼容数字字符串
func (m *Message) IntID() (int64, bool) {
	return parseMessageID(m.ID)
}

func parseMessageID(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	parsed, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// NumericID 将整数编码为消息 id
func NumericID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// NewRequest 构造请求消息
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      NumericID(id),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification 构造通知消息
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResponse 构造成功响应，result 为 nil 时编码为 JSON null
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw := json.RawMessage("null")
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewErrorResponse 构造错误响应
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// marshalParams nil 参数编码为 null
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
