package registry

import (
	"bytes"
	"encoding/json"

	"dipex/pkg/contract"
	bflaky "dipex/plugins/backend/flaky"
	blocal "dipex/plugins/backend/local"
	bmock "dipex/plugins/backend/mock"
	bremote "dipex/plugins/backend/remote"
	brules "dipex/plugins/backend/rules"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewBackend 工厂签名：接收原样 JSON Options。
type NewBackend func(raw json.RawMessage) (contract.Backend, error)

// Backend 工厂注册表（显式、零反射）。
var Backend = map[string]NewBackend{
	// rules: 确定性前缀替换（离线）
	"rules": func(raw json.RawMessage) (contract.Backend, error) {
		var opts brules.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return brules.New(raw)
	},
	// local: Ollama，失败硬回退 rules
	"local": func(raw json.RawMessage) (contract.Backend, error) {
		var opts blocal.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return blocal.NewWithOptions(&opts), nil
	},
	// remote: Gemini API（支持整文档模式）
	"remote": func(raw json.RawMessage) (contract.Backend, error) {
		var opts bremote.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return bremote.New(raw)
	},
	"mock": func(raw json.RawMessage) (contract.Backend, error) {
		return bmock.New(raw)
	},
	"flaky": func(raw json.RawMessage) (contract.Backend, error) {
		return bflaky.New(raw)
	},
}
