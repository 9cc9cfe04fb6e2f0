package httpx

import "encoding/json"

// The backend wraps responses inconsistently: a bare value, {"data": ...},
// or a paginated {"data": {"content": [...]}}. The decode helpers accept all
// known shapes so callers see plain values.

type listEnvelope[T any] struct {
	Data    json.RawMessage `json:"data"`
	Content []T             `json:"content"`
}

type contentEnvelope[T any] struct {
	Content []T `json:"content"`
}

// DecodeList extracts a slice from any of the accepted envelope shapes.
// Unrecognized shapes decode to an empty list rather than an error, matching
// the tolerant read behavior of the storefront.
func DecodeList[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}

	var direct []T
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var env listEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Content != nil {
		return env.Content
	}
	if len(env.Data) > 0 {
		var inner []T
		if err := json.Unmarshal(env.Data, &inner); err == nil {
			return inner
		}
		var nested contentEnvelope[T]
		if err := json.Unmarshal(env.Data, &nested); err == nil {
			return nested.Content
		}
	}
	return nil
}

// DecodeValue extracts a scalar from a bare value or a {"data": value}
// envelope. The second return reports whether a value was present.
func DecodeValue[T any](raw json.RawMessage) (T, bool) {
	var zero T
	if len(raw) == 0 {
		return zero, false
	}

	var direct T
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, true
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Data) == 0 {
		return zero, false
	}
	var inner T
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		return zero, false
	}
	return inner, true
}

// TokenFromEnvelope pulls a renewed credential out of a refresh or login
// response, accepting the field spellings the backend variants use.
func TokenFromEnvelope(raw json.RawMessage) (token, role, loginID string) {
	var env struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
		Role        string `json:"role"`
		LoginID     string `json:"loginId"`
		Data        *struct {
			Token       string `json:"token"`
			AccessToken string `json:"accessToken"`
			Role        string `json:"role"`
			LoginID     string `json:"loginId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", ""
	}

	token = env.Token
	if token == "" {
		token = env.AccessToken
	}
	role = env.Role
	loginID = env.LoginID

	if env.Data != nil {
		if token == "" {
			token = env.Data.Token
		}
		if token == "" {
			token = env.Data.AccessToken
		}
		if role == "" {
			role = env.Data.Role
		}
		if loginID == "" {
			loginID = env.Data.LoginID
		}
	}
	return token, role, loginID
}
