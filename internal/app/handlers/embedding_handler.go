// Package handlers 提供 HTTP 接口处理器
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"colpali-server/internal/app/middleware"
	"colpali-server/internal/domain/models"
	"colpali-server/internal/eino/callbacks"
	"colpali-server/pkg/logger"
	"colpali-server/pkg/status"
)

// inputTypePattern input_type 合法取值的正则描述，出现在 422 的 msg 中
const inputTypePattern = "^(text|image)$"

// Embedder 批量向量化能力，由 flows.BatchEmbedder 实现
type Embedder interface {
	Embed(ctx context.Context, inputType models.InputType, inputs []string) ([]models.Embedding, error)
	ModelInfo() models.ModelInfo
}

// EmbeddingHandler 向量化接口处理器
type EmbeddingHandler struct {
	embedder Embedder
	logger   logger.Logger
}

// NewEmbeddingHandler 创建向量化处理器，embedder 为 nil 表示模型尚未加载
func NewEmbeddingHandler(embedder Embedder, log logger.Logger) *EmbeddingHandler {
	registerJSONFieldNames()
	return &EmbeddingHandler{
		embedder: embedder,
		logger:   log,
	}
}

// EmbeddingRequest 向量化请求体
type EmbeddingRequest struct {
	InputType string    `json:"input_type" binding:"required,oneof=text image"`
	Inputs    []*string `json:"inputs" binding:"required"`
}

// nullInputDetails 为 inputs 中的每个 null 元素生成一条校验错误
func nullInputDetails(inputs []*string) []ValidationDetail {
	var details []ValidationDetail
	for i, in := range inputs {
		if in == nil {
			details = append(details, ValidationDetail{
				Loc:  []any{"body", "inputs", i},
				Msg:  "Input should be a valid string",
				Type: "string_type",
			})
		}
	}
	return details
}

// derefInputs 将已校验的 inputs 展开为字符串列表
func derefInputs(inputs []*string) []string {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = *in
	}
	return out
}

// EmbeddingResponse 向量化响应体，embeddings[i] 对应 inputs[i]
type EmbeddingResponse struct {
	Embeddings []models.Embedding `json:"embeddings"`
}

// GPUCheckResponse 健康检查响应体
type GPUCheckResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ValidationDetail 单条参数校验错误
type ValidationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ErrorResponse 错误响应体，detail 为字符串或 []ValidationDetail
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// GPUCheck 健康检查，无需鉴权
// GET /gpu-check
func (h *EmbeddingHandler) GPUCheck(c *gin.Context) {
	c.JSON(http.StatusOK, GPUCheckResponse{
		Status:      "ok",
		ModelLoaded: h.embedder != nil,
	})
}

// CreateEmbeddings 批量生成多向量
// POST /embeddings
func (h *EmbeddingHandler) CreateEmbeddings(c *gin.Context) {
	requestID := middleware.GetRequestID(c)
	ctx := callbacks.WithTraceID(c.Request.Context(), requestID)

	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.logger.WarnContext(ctx, "请求体超过限制",
				"request_id", requestID,
				"limit", maxErr.Limit)
			c.JSON(status.ErrCodeBodyTooLarge.HTTPStatus(), ErrorResponse{Detail: "Request body too large"})
			return
		}

		h.logger.WarnContext(ctx, "向量化请求参数校验失败",
			"request_id", requestID,
			"error", err.Error())
		c.JSON(status.ErrCodeInvalidParam.HTTPStatus(), ErrorResponse{Detail: validationDetails(err)})
		return
	}
	if details := nullInputDetails(req.Inputs); len(details) > 0 {
		h.logger.WarnContext(ctx, "向量化请求包含 null 输入",
			"request_id", requestID,
			"nulls", len(details))
		c.JSON(status.ErrCodeInvalidParam.HTTPStatus(), ErrorResponse{Detail: details})
		return
	}
	inputs := derefInputs(req.Inputs)

	if h.embedder == nil {
		c.JSON(status.ErrCodeUnavailable.HTTPStatus(), ErrorResponse{Detail: "Model not loaded"})
		return
	}

	inputType := models.InputType(req.InputType)
	h.logger.InfoContext(ctx, "收到向量化请求",
		"request_id", requestID,
		"input_type", inputType.String(),
		"inputs", len(inputs))

	startTime := time.Now()
	embeddings, err := h.embedder.Embed(ctx, inputType, inputs)
	if err != nil {
		h.logger.ErrorContext(ctx, "向量化请求处理失败",
			"request_id", requestID,
			"input_type", inputType.String(),
			"inputs", len(inputs),
			"error", err.Error())
		_ = c.Error(err)
		c.JSON(status.ErrCodeInternal.HTTPStatus(), ErrorResponse{
			Detail: fmt.Sprintf("Internal server error: %s", err.Error()),
		})
		return
	}

	h.logger.InfoContext(ctx, "向量化请求处理完成",
		"request_id", requestID,
		"inputs", len(inputs),
		"total_s", fmt.Sprintf("%.2f", time.Since(startTime).Seconds()))

	c.JSON(http.StatusOK, EmbeddingResponse{Embeddings: embeddings})
}

var registerOnce sync.Once

// registerJSONFieldNames 让校验错误使用 JSON 字段名而不是 Go 字段名
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// validationDetails 将绑定错误转换为 422 的 detail 列表
func validationDetails(err error) []ValidationDetail {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &validationErrs):
		details := make([]ValidationDetail, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, fieldDetail(fe))
		}
		return details

	case errors.As(err, &syntaxErr):
		return []ValidationDetail{{
			Loc:  []any{"body", syntaxErr.Offset},
			Msg:  "JSON decode error",
			Type: "json_invalid",
		}}

	case errors.As(err, &typeErr):
		loc := []any{"body"}
		if typeErr.Field != "" {
			for _, part := range strings.Split(typeErr.Field, ".") {
				loc = append(loc, part)
			}
		}
		kind, msg := typeErrorKind(typeErr.Type)
		return []ValidationDetail{{Loc: loc, Msg: msg, Type: kind}}

	case errors.Is(err, io.ErrUnexpectedEOF):
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  "JSON decode error",
			Type: "json_invalid",
		}}

	case errors.Is(err, io.EOF):
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  "Field required",
			Type: "missing",
		}}

	default:
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  err.Error(),
			Type: status.ErrCodeInvalidParam.String(),
		}}
	}
}

func fieldDetail(fe validator.FieldError) ValidationDetail {
	loc := []any{"body", fe.Field()}
	switch fe.Tag() {
	case "required":
		return ValidationDetail{Loc: loc, Msg: "Field required", Type: "missing"}
	case "oneof":
		return ValidationDetail{
			Loc:  loc,
			Msg:  fmt.Sprintf("String should match pattern '%s'", inputTypePattern),
			Type: "string_pattern_mismatch",
		}
	default:
		return ValidationDetail{Loc: loc, Msg: fe.Error(), Type: status.ErrCodeInvalidParam.String()}
	}
}

func typeErrorKind(t reflect.Type) (string, string) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string_type", "Input should be a valid string"
	case reflect.Slice, reflect.Array:
		return "list_type", "Input should be a valid list"
	case reflect.Struct, reflect.Map:
		return "model_attributes_type", "Input should be a valid dictionary or object to extract fields from"
	default:
		return "type_error", fmt.Sprintf("Input should be a valid %s", t.Kind())
	}
}
