package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tutor-support-bot/internal/logger"

	"github.com/allegro/bigcache/v3"
)

// Provider переводит свободный текст в вектор фиксированной длины.
// Может быть недоступен - вызывающий обязан уметь деградировать.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client - клиент ollama-совместимого сервиса эмбеддингов. Повторные
// вопросы не пересчитываются: готовые вектора лежат в bigcache.
type Client struct {
	addr  string
	model string

	cl    *http.Client
	cache *bigcache.BigCache
}

type (
	embedRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}

	embedResponse struct {
		Embedding []float32 `json:"embedding"`
	}
)

func NewClient(addr, model string, timeout time.Duration) (*Client, error) {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(2*time.Hour))
	if err != nil {
		return nil, err
	}

	return &Client{
		addr:  strings.TrimRight(addr, "/"),
		model: model,
		cl:    &http.Client{Timeout: timeout},
		cache: cache,
	}, nil
}

func (c *Client) Close() error {
	return c.cache.Close()
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if b, err := c.cache.Get(key); err == nil {
		var vec []float32
		if err := json.Unmarshal(b, &vec); err == nil {
			return vec, nil
		}
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		logger.Warning("embedding - cache get", err)
	}

	vec, err := c.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(vec); err == nil {
		if err := c.cache.Set(key, b); err != nil {
			logger.Warning("embedding - cache set", err)
		}
	}

	return vec, nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/api/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: service returned %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("embedding: empty vector in response")
	}

	return out.Embedding, nil
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
