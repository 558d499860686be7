package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("green api %s: status %d: %s", e.Method, e.StatusCode, e.Body)
}

// Client talks to one Green API instance.
type Client struct {
	baseURL    string
	idInstance string
	token      string
	http       *http.Client
}

// NewClient creates a client for the given instance credentials.
func NewClient(baseURL, idInstance, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		idInstance: strings.TrimSpace(idInstance),
		token:      strings.TrimSpace(token),
		http:       httpClient,
	}
}

func (c *Client) methodURL(method string, suffix ...string) string {
	parts := append([]string{c.baseURL, "waInstance" + c.idInstance, method, c.token}, suffix...)
	return strings.Join(parts, "/")
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendFileByURLRequest struct {
	ChatID   string `json:"chatId"`
	URLFile  string `json:"urlFile"`
	FileName string `json:"fileName"`
	Caption  string `json:"caption,omitempty"`
}

type sendResponse struct {
	IDMessage string `json:"idMessage"`
}

// SendMessage sends a text message and returns the gateway message id.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	var out sendResponse
	if err := c.do(ctx, http.MethodPost, "sendMessage", c.methodURL("sendMessage"), sendMessageRequest{ChatID: chatID, Message: text}, &out); err != nil {
		return "", err
	}
	return out.IDMessage, nil
}

// SendFileByURL asks the gateway to fetch fileURL and send it to chatID.
func (c *Client) SendFileByURL(ctx context.Context, chatID, fileURL, fileName, caption string) (string, error) {
	body := sendFileByURLRequest{ChatID: chatID, URLFile: fileURL, FileName: fileName, Caption: caption}
	var out sendResponse
	if err := c.do(ctx, http.MethodPost, "sendFileByUrl", c.methodURL("sendFileByUrl"), body, &out); err != nil {
		return "", err
	}
	return out.IDMessage, nil
}

// ReceiveNotification long-polls the notification queue. A nil notification
// means the queue stayed empty for the whole timeout.
func (c *Client) ReceiveNotification(ctx context.Context, timeoutSeconds int) (*Notification, error) {
	endpoint := c.methodURL("receiveNotification")
	if timeoutSeconds > 0 {
		endpoint += "?receiveTimeout=" + strconv.Itoa(timeoutSeconds)
	}
	var out *Notification
	if err := c.do(ctx, http.MethodGet, "receiveNotification", endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNotification acknowledges a received notification.
func (c *Client) DeleteNotification(ctx context.Context, receiptID int64) error {
	endpoint := c.methodURL("deleteNotification", strconv.FormatInt(receiptID, 10))
	return c.do(ctx, http.MethodDelete, "deleteNotification", endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, httpMethod, method, endpoint string, in any, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", method, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("green api %s: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
