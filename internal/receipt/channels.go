package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tagpos/backend/internal/domain"
)

const (
	ChannelWhatsAppLink     = "whatsapp_link"
	ChannelWhatsAppText     = "whatsapp_text"
	ChannelWhatsAppDocument = "whatsapp_document"
	ChannelSMS              = "sms"
	ChannelEmail            = "email"
)

var KnownChannels = []string{ChannelWhatsAppLink, ChannelWhatsAppText, ChannelWhatsAppDocument, ChannelSMS, ChannelEmail}

// Envelope is one message ready for a channel.
type Envelope struct {
	Recipient   string
	Email       string
	Subject     string
	Body        string
	Caption     string
	DocumentURL string
}

// Result reports one delivery attempt. Delivery is best effort: Success only
// means the provider accepted the request.
type Result struct {
	Success bool
	Message string
}

type Channel interface {
	Name() string
	Send(ctx context.Context, env Envelope) Result
}

// LinkChannel produces a WhatsApp click-to-chat link for the client to open.
type LinkChannel struct{}

func (LinkChannel) Name() string { return ChannelWhatsAppLink }

func (LinkChannel) Send(_ context.Context, env Envelope) Result {
	if strings.TrimSpace(env.Recipient) == "" {
		return Result{Success: false, Message: "missing contact number"}
	}
	return Result{Success: true, Message: WhatsAppLink(env.Recipient, env.Body)}
}

// APIChannel posts a JSON payload to a messaging provider.
type APIChannel struct {
	name       string
	endpoint   string
	header     string
	credential string
	client     *http.Client
	payload    func(Envelope) (any, error)
}

func (c *APIChannel) Name() string { return c.name }

func (c *APIChannel) Send(ctx context.Context, env Envelope) Result {
	if c.endpoint == "" || c.credential == "" {
		return Result{Success: false, Message: c.name + " is not configured"}
	}
	payload, err := c.payload(env)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Message: "encode payload: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Message: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.header == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	} else {
		req.Header.Set(c.header, c.credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Success: false, Message: "send failed: " + err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Success: false, Message: fmt.Sprintf("provider responded with HTTP %d", resp.StatusCode)}
	}
	return Result{Success: true, Message: "accepted by provider"}
}

func internationalNumber(contact string) (string, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "", fmt.Errorf("missing contact number")
	}
	return "91" + contact, nil
}

func NewWhatsAppTextChannel(endpoint string, token string, client *http.Client) *APIChannel {
	return &APIChannel{
		name:       ChannelWhatsAppText,
		endpoint:   endpoint,
		header:     "Authorization",
		credential: token,
		client:     orDefault(client),
		payload: func(env Envelope) (any, error) {
			to, err := internationalNumber(env.Recipient)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"messaging_product": "whatsapp",
				"to":                to,
				"type":              "text",
				"text":              map[string]string{"body": env.Body},
			}, nil
		},
	}
}

func NewWhatsAppDocumentChannel(endpoint string, token string, client *http.Client) *APIChannel {
	return &APIChannel{
		name:       ChannelWhatsAppDocument,
		endpoint:   endpoint,
		header:     "Authorization",
		credential: token,
		client:     orDefault(client),
		payload: func(env Envelope) (any, error) {
			to, err := internationalNumber(env.Recipient)
			if err != nil {
				return nil, err
			}
			if env.DocumentURL == "" {
				return nil, fmt.Errorf("no receipt document url configured")
			}
			return map[string]any{
				"messaging_product": "whatsapp",
				"to":                to,
				"type":              "document",
				"document": map[string]string{
					"link":     env.DocumentURL,
					"caption":  env.Caption,
					"filename": "receipt.pdf",
				},
			}, nil
		},
	}
}

func NewSMSChannel(endpoint string, apiKey string, client *http.Client) *APIChannel {
	return &APIChannel{
		name:       ChannelSMS,
		endpoint:   endpoint,
		header:     "X-API-Key",
		credential: apiKey,
		client:     orDefault(client),
		payload: func(env Envelope) (any, error) {
			to, err := internationalNumber(env.Recipient)
			if err != nil {
				return nil, err
			}
			return map[string]string{"to": to, "message": env.Body}, nil
		},
	}
}

// NewEmailChannel sends the receipt to Envelope.Email, the store's inbox copy.
func NewEmailChannel(endpoint string, apiKey string, from string, client *http.Client) *APIChannel {
	return &APIChannel{
		name:       ChannelEmail,
		endpoint:   endpoint,
		header:     "Authorization",
		credential: apiKey,
		client:     orDefault(client),
		payload: func(env Envelope) (any, error) {
			if strings.TrimSpace(env.Email) == "" {
				return nil, fmt.Errorf("no email recipient configured")
			}
			if from == "" {
				return nil, fmt.Errorf("no sender address configured")
			}
			return map[string]any{
				"from":    from,
				"to":      []string{env.Email},
				"subject": env.Subject,
				"text":    env.Body,
			}, nil
		},
	}
}

// ChannelsFromSettings builds the enabled channels. With nothing enabled the
// WhatsApp link is used.
func ChannelsFromSettings(settings domain.MessagingSettings, client *http.Client) []Channel {
	enabled := settings.EnabledChannels
	if len(enabled) == 0 {
		enabled = []string{ChannelWhatsAppLink}
	}

	seen := make(map[string]struct{}, len(enabled))
	channels := make([]Channel, 0, len(enabled))
	for _, name := range enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case ChannelWhatsAppLink:
			channels = append(channels, LinkChannel{})
		case ChannelWhatsAppText:
			channels = append(channels, NewWhatsAppTextChannel(settings.WhatsAppEndpoint, settings.WhatsAppToken, client))
		case ChannelWhatsAppDocument:
			channels = append(channels, NewWhatsAppDocumentChannel(settings.WhatsAppEndpoint, settings.WhatsAppToken, client))
		case ChannelSMS:
			channels = append(channels, NewSMSChannel(settings.SMSEndpoint, settings.SMSAPIKey, client))
		case ChannelEmail:
			channels = append(channels, NewEmailChannel(settings.EmailEndpoint, settings.EmailAPIKey, settings.EmailFrom, client))
		}
	}
	return channels
}

func IsKnownChannel(name string) bool {
	for _, known := range KnownChannels {
		if known == name {
			return true
		}
	}
	return false
}

func orDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
