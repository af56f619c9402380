// Package whatsapp is the outbound side of the messaging gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"atende_backend/platform/config"
	"atende_backend/platform/logger"
	"atende_backend/platform/phone"
)

// ErrInvalidRecipient is returned when the phone cannot be normalized.
var ErrInvalidRecipient = errors.New("whatsapp: invalid recipient")

// Attachment is a document delivered through sendMedia. Either URL or
// Base64 must be set.
type Attachment struct {
	FileName string
	MimeType string
	Caption  string
	URL      string
	Base64   string
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName,omitempty"`
}

// NewClient returns nil when the gateway is not configured. All methods are
// no-ops on a nil client.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:  cfg.GetWhatsAppKey(),
		http:    &http.Client{Timeout: cfg.GetWhatsAppTimeout()},
		log:     log,
	}
}

// SendText delivers a plain text message from the given gateway instance.
func (c *Client) SendText(ctx context.Context, instance, phoneNumber, text string) error {
	if c == nil {
		return nil
	}

	number := recipient(phoneNumber)
	if number == "" {
		return ErrInvalidRecipient
	}

	if err := c.post(ctx, "/message/sendText/"+url.PathEscape(instance), sendTextRequest{
		Number: number,
		Text:   text,
	}); err != nil {
		return err
	}

	c.log.Debug("whatsapp: text sent", "instance", instance, "phone", number)
	return nil
}

// SendDocument delivers a document attachment from the given gateway instance.
func (c *Client) SendDocument(ctx context.Context, instance, phoneNumber string, doc Attachment) error {
	if c == nil {
		return nil
	}

	number := recipient(phoneNumber)
	if number == "" {
		return ErrInvalidRecipient
	}

	media := doc.URL
	if media == "" {
		media = doc.Base64
	}
	if media == "" {
		return errors.New("whatsapp: attachment has no content")
	}

	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	if err := c.post(ctx, "/message/sendMedia/"+url.PathEscape(instance), sendMediaRequest{
		Number:    number,
		MediaType: "document",
		MimeType:  mimeType,
		Caption:   doc.Caption,
		Media:     media,
		FileName:  doc.FileName,
	}); err != nil {
		return err
	}

	c.log.Debug("whatsapp: document sent", "instance", instance, "phone", number, "fileName", doc.FileName)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func recipient(raw string) string {
	return strings.TrimPrefix(phone.FormatE164(raw), "+")
}
