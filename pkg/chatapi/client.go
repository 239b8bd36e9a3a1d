package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatsend/internal/models"
	"chatsend/internal/privacy"

	"github.com/sirupsen/logrus"
)

const (
	sendMessagePath = "/api/v1/chat.sendMessage"
	uploadPath      = "/api/v1/rooms.upload/"
	maxErrorBody    = 4096
)

type Client interface {
	SendMessage(ctx context.Context, session models.Session, msg *models.OutgoingMessage) (*models.SendResult, error)
	UploadFile(ctx context.Context, session models.Session, roomID string, upload *models.Upload, tmid string, isRetry bool) error
}

// RESTClient talks to the chat server's REST API. The server and credentials
// come from the session passed to each call; baseURL is used when the
// session names no server.
type RESTClient struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, httpClient *http.Client) *RESTClient {
	return NewClientWithLogger(baseURL, httpClient, nil)
}

func NewClientWithLogger(baseURL string, httpClient *http.Client, logger *logrus.Logger) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
		logger:  logger,
	}
}

// SendMessage posts the message to chat.sendMessage. A nil error means the
// server answered; the caller still has to check Success.
func (c *RESTClient) SendMessage(ctx context.Context, session models.Session, msg *models.OutgoingMessage) (*models.SendResult, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}

	jsonData, err := json.Marshal(SendMessageRequest{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint, err := c.endpoint(session, sendMessagePath)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(privacy.MaskSensitiveFields(logrus.Fields{
		"endpoint":   endpoint,
		"message_id": msg.ID,
		"room_id":    msg.RoomID,
		"encrypted":  msg.IsEncrypted(),
	})).Debug("Sending chat message request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, session)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var result models.SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// UploadFile sends the file at upload.Path to rooms.upload as multipart form data.
func (c *RESTClient) UploadFile(ctx context.Context, session models.Session, roomID string, upload *models.Upload, tmid string, isRetry bool) error {
	if upload == nil {
		return fmt.Errorf("upload is required")
	}

	endpoint, err := c.endpoint(session, uploadPath+url.PathEscape(roomID))
	if err != nil {
		return err
	}

	body, contentType, err := buildMultipart(upload, tmid)
	if err != nil {
		return err
	}

	c.logger.WithFields(privacy.MaskSensitiveFields(logrus.Fields{
		"endpoint":  endpoint,
		"upload_id": upload.ID,
		"room_id":   roomID,
		"thread_id": tmid,
		"path":      upload.Path,
		"retry":     isRetry,
		"size":      upload.Size,
	})).Debug("Uploading file")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	setAuth(req, session)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("upload rejected: %s", result.Error)
	}
	return nil
}

func (c *RESTClient) endpoint(session models.Session, path string) (string, error) {
	base := strings.TrimSuffix(session.Server, "/")
	if base == "" {
		base = c.baseURL
	}
	if base == "" {
		return "", fmt.Errorf("no server URL configured")
	}
	return base + path, nil
}

func setAuth(req *http.Request, session models.Session) {
	if session.UserID != "" {
		req.Header.Set("X-User-Id", session.UserID)
	}
	if session.AuthToken != "" {
		req.Header.Set("X-Auth-Token", session.AuthToken)
	}
}

func readAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
}

func buildMultipart(upload *models.Upload, tmid string) (*bytes.Buffer, string, error) {
	file, err := os.Open(upload.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload file: %w", err)
	}
	defer file.Close()

	name := upload.Name
	if name == "" {
		name = filepath.Base(upload.Path)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy upload file: %w", err)
	}

	fields := map[string]string{
		"description": upload.Description,
		"tmid":        tmid,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
