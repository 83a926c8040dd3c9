package status

import "net/http"

// StatusCode 统一的业务状态码类型
// 说明：尽量保持简单以满足当前项目使用场景
// 0 表示成功，其余为错误状态

type StatusCode int

const (
	// CodeOK 成功
	CodeOK StatusCode = 0

	// ErrCodeInvalidParam 参数错误
	ErrCodeInvalidParam StatusCode = 1001
	// ErrCodeInternal 内部错误
	ErrCodeInternal StatusCode = 1002
	// ErrCodeUnavailable 服务不可用（模型未加载）
	ErrCodeUnavailable StatusCode = 1003
	// ErrCodeUnauthorized 凭证缺失或无效
	ErrCodeUnauthorized StatusCode = 1005
	// ErrCodeBodyTooLarge 请求体超过限制
	ErrCodeBodyTooLarge StatusCode = 1006
)

// String 将状态码转换为字符串标识
func (c StatusCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case ErrCodeInvalidParam:
		return "INVALID_PARAM"
	case ErrCodeInternal:
		return "INTERNAL_ERROR"
	case ErrCodeUnavailable:
		return "UNAVAILABLE"
	case ErrCodeUnauthorized:
		return "UNAUTHORIZED"
	case ErrCodeBodyTooLarge:
		return "BODY_TOO_LARGE"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus 将业务状态码映射为 HTTP 状态码
func (c StatusCode) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case ErrCodeInvalidParam:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
