package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tutor-support-bot/internal/logger"
)

// Sender - исходящая отправка через шлюз. Узкий интерфейс, чтобы в
// тестах подменять клиента фейком.
type Sender interface {
	Send(ctx context.Context, recipientID int64, text string, keyboard *Keyboard) error
	SendWithAttachments(ctx context.Context, recipientID int64, text string, attachments []string, keyboard *Keyboard) error
}

type (
	Client struct {
		serverAddr string
		login      string
		password   string

		cl *http.Client
	}

	HTTPError struct {
		URL     string
		Code    int
		Message string
	}
)

func New(serverAddr, login, password string) *Client {
	return &Client{
		serverAddr: serverAddr,
		login:      login,
		password:   password,

		cl: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				IdleConnTimeout:     30 * time.Second,
				DisableKeepAlives:   false,
				MaxIdleConnsPerHost: 5,
				DisableCompression:  true,
			},
		},
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Http request failed for %s with code %d and message:\n%s", e.URL, e.Code, e.Message)
}

// SetHook регистрирует адрес, на который шлюз доставляет события.
func (c *Client) SetHook(hookAddr string) error {
	data := HookSetupRequest{
		Type: "bot",
		URL:  hookAddr,
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = c.Invoke(context.Background(), http.MethodPost, "/hook/", nil, jsonData)
	return err
}

func (c *Client) DeleteHook() error {
	_, err := c.Invoke(context.Background(), http.MethodDelete, "/hook/bot/", nil, nil)
	return err
}

func (c *Client) Send(ctx context.Context, recipientID int64, text string, keyboard *Keyboard) error {
	return c.SendWithAttachments(ctx, recipientID, text, nil, keyboard)
}

// SendWithAttachments шлет сообщение конкретному получателю. Ошибка
// касается только этого получателя (например, бот заблокирован).
func (c *Client) SendWithAttachments(ctx context.Context, recipientID int64, text string, attachments []string, keyboard *Keyboard) error {
	data := MessageRequest{
		RecipientID: recipientID,
		Text:        text,
		Attachments: attachments,
		Keyboard:    keyboard,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = c.Invoke(ctx, http.MethodPost, "/messages/send/", nil, jsonData)
	return err
}

func (c *Client) Invoke(ctx context.Context, method string, methodURL string, urlParams url.Values, body []byte) (content []byte, err error) {
	methodURL = strings.Trim(methodURL, "/")
	reqURL := c.serverAddr + "/v1/" + methodURL + "/"
	if urlParams != nil {
		reqURL += "?" + urlParams.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("---> request", req.Method, reqURL)

	resp, err := c.cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	logger.Debug("<--- request", req.Method, reqURL)
	if err != nil {
		logger.Warning("Error while read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			URL:     req.URL.String(),
			Code:    resp.StatusCode,
			Message: string(bodyBytes),
		}
	}

	return bodyBytes, nil
}
