// Package remote 通过 HTTP 调用托管预训练多向量模型的 GPU 推理后端
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/pkg/logger"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 4 << 10

// Invoker 远程推理后端调用方
type Invoker struct {
	client  *retryablehttp.Client
	baseURL string
	model   string
	apiKey  string
	headers map[string]string
	info    models.ModelInfo
	logger  logger.Logger
}

var _ services.ModelInvoker = (*Invoker)(nil)

// embedRequest POST /embed 请求体
type embedRequest struct {
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Inputs    []string `json:"inputs"`
}

// embedResponse POST /embed 响应体
type embedResponse struct {
	Embeddings []models.Embedding `json:"embeddings"`
}

// infoResponse GET /info 响应体
type infoResponse struct {
	Model     string `json:"model"`
	Device    string `json:"device"`
	DType     string `json:"dtype"`
	Attention string `json:"attention"`
}

// EmbedTexts 批量生成文本多向量
func (s *Invoker) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	return s.embed(ctx, models.InputTypeText, texts)
}

// EmbedImages 批量生成图片多向量，图片统一重新编码为 PNG 再 base64 传输
func (s *Invoker) EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error) {
	inputs := make([]string, len(images))
	var buf bytes.Buffer
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("image %d is nil", i)
		}
		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode image %d: %w", i, err)
		}
		inputs[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	return s.embed(ctx, models.InputTypeImage, inputs)
}

// Info 返回启动时从后端获取的模型信息
func (s *Invoker) Info() models.ModelInfo {
	return s.info
}

// Close 释放空闲连接
func (s *Invoker) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	s.logger.Info("远程推理后端调用方关闭", "base_url", s.baseURL)
	return nil
}

func (s *Invoker) embed(ctx context.Context, inputType models.InputType, inputs []string) ([]models.Embedding, error) {
	startTime := time.Now()

	body, err := json.Marshal(embedRequest{
		Model:     s.model,
		InputType: inputType.String(),
		Inputs:    inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/embed", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out embedResponse
	if err := s.do(req, &out); err != nil {
		s.logger.ErrorContext(ctx, "推理后端调用失败",
			"input_type", inputType,
			"batch_size", len(inputs),
			"error", err)
		return nil, err
	}

	if len(out.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d",
			services.ErrResultCountMismatch, len(out.Embeddings), len(inputs))
	}

	s.logger.DebugContext(ctx, "推理后端调用完成",
		"input_type", inputType,
		"batch_size", len(inputs),
		"processing_time_ms", float64(time.Since(startTime).Microseconds())/1e3)

	return out.Embeddings, nil
}

func (s *Invoker) fetchInfo(ctx context.Context) (models.ModelInfo, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/info", nil)
	if err != nil {
		return models.ModelInfo{}, err
	}

	var out infoResponse
	if err := s.do(req, &out); err != nil {
		return models.ModelInfo{}, err
	}

	model := out.Model
	if model == "" {
		model = s.model
	}
	return models.ModelInfo{
		Provider:  "remote",
		Model:     model,
		Device:    out.Device,
		DType:     out.DType,
		Attention: out.Attention,
	}, nil
}

func (s *Invoker) newRequest(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.baseURL+path, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *Invoker) do(req *retryablehttp.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
