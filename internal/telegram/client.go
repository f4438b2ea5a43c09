// Package telegram provides client functionality for the Telegram Bot API
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the base URL for the Telegram Bot API
	DefaultBaseURL = "https://api.telegram.org"
)

// Client represents a Telegram Bot API client
type Client struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
}

// APIResponse represents a generic API response from Telegram
type APIResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// APIError represents an error response from the API
type APIError struct {
	Description string
	Code        int
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code: %d)", e.Description, e.Code)
	}
	return e.Description
}

// BotClient defines the platform operations used by the worker
type BotClient interface {
	GetMe(ctx context.Context) (*BotInfo, error)
	SetWebhook(ctx context.Context, webhookURL string) error
	SendMessage(ctx context.Context, chatID int64, text string) (*Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendVideo(ctx context.Context, chatID int64, filePath, caption string) error
	SendAudio(ctx context.Context, chatID int64, filePath, caption string) error
	SendDocument(ctx context.Context, chatID int64, filePath, caption string) error
}

// New creates a new Telegram Bot API client
func New(token string) *Client {
	return &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Media uploads of multi-gigabyte files need a much longer timeout
		uploadClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

// endpoint builds the method URL for this bot token
func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call performs a form-encoded API request and unmarshals the result
func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(method), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, result)
}

// decodeResponse unwraps the Telegram API envelope
func decodeResponse(resp *http.Response, result any) error {
	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !apiResp.OK {
		return &APIError{Description: apiResp.Description, Code: apiResp.ErrorCode}
	}

	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
	}

	return nil
}

// GetMe validates the bot token by fetching the bot identity
func (c *Client) GetMe(ctx context.Context) (*BotInfo, error) {
	var info BotInfo
	if err := c.call(ctx, "getMe", url.Values{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetWebhook registers the public webhook URL with the platform
func (c *Client) SetWebhook(ctx context.Context, webhookURL string) error {
	params := url.Values{}
	params.Set("url", webhookURL)
	return c.call(ctx, "setWebhook", params, nil)
}

// SendMessage sends a text message and returns the created message
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a previously sent message
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.Itoa(messageID))
	params.Set("text", text)
	return c.call(ctx, "editMessageText", params, nil)
}

// DeleteMessage removes a previously sent message
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.Itoa(messageID))
	return c.call(ctx, "deleteMessage", params, nil)
}

// SendVideo uploads a local file on the video channel
func (c *Client) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	return c.sendFile(ctx, "sendVideo", "video", chatID, filePath, caption)
}

// SendAudio uploads a local file on the audio channel
func (c *Client) SendAudio(ctx context.Context, chatID int64, filePath, caption string) error {
	return c.sendFile(ctx, "sendAudio", "audio", chatID, filePath, caption)
}

// SendDocument uploads a local file on the document channel
func (c *Client) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	return c.sendFile(ctx, "sendDocument", "document", chatID, filePath, caption)
}

// sendFile streams a local file as a multipart upload. The file is read
// through a pipe so large artifacts are never buffered in memory.
func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, filePath, caption string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()

		if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			pw.CloseWithError(err)
			return
		}
		if caption != "" {
			if err := writer.WriteField("caption", caption); err != nil {
				pw.CloseWithError(err)
				return
			}
		}

		part, err := writer.CreateFormFile(field, filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}

		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(method), pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, nil)
}
