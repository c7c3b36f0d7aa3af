/**
 * @description
 * NotificationDispatcher distributes status-change events to email and chat
 * channels. Delivery is strictly best-effort: every recipient/channel attempt
 * is isolated, failures are logged and swallowed, and Dispatch never returns
 * an error to the caller whose state transition triggered it.
 *
 * Attachments are fetched from receipt storage at dispatch time; a failed
 * download degrades that delivery to text-only instead of failing it.
 */

package app

import (
	"context"
	"log"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// Recipient identifies one notification target. Empty addresses disable the
// corresponding channel for that recipient.
type Recipient struct {
	Name        string
	Email       string
	ChatAddress string
}

// NotificationEvent describes what happened and what to send.
type NotificationEvent struct {
	Kind           string
	Subject        string
	Body           string
	AttachmentURLs []string
}

// EmailSender delivers a rendered email. Rendering is external; this core
// only supplies subject, body and attachments.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string, attachments []domain.UploadedFile) error
}

// ChatSender delivers a chat message with optional attachments.
type ChatSender interface {
	SendChatMessage(ctx context.Context, to, body string, attachments []domain.UploadedFile) error
}

// AttachmentFetcher retrieves stored receipt bytes by URL.
type AttachmentFetcher interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Dispatcher fans a notification event out to all recipients and channels.
type Dispatcher struct {
	email   EmailSender
	chat    ChatSender
	storage AttachmentFetcher
}

// NewDispatcher creates a dispatcher. Either channel may be nil, in which
// case it is skipped for every recipient.
func NewDispatcher(email EmailSender, chat ChatSender, storage AttachmentFetcher) *Dispatcher {
	return &Dispatcher{email: email, chat: chat, storage: storage}
}

// Dispatch attempts delivery to every recipient on every configured channel.
// A failure on one recipient/channel never prevents the remaining attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, event NotificationEvent) {
	attachments := d.fetchAttachments(ctx, event)

	for _, recipient := range recipients {
		if d.email != nil && recipient.Email != "" {
			if err := d.email.SendEmail(ctx, recipient.Email, event.Subject, event.Body, attachments); err != nil {
				log.Printf("level=warn component=notifier channel=email event=%s recipient=%s msg=\"delivery failed\" err=%v", event.Kind, recipient.Email, err)
			}
		}
		if d.chat != nil && recipient.ChatAddress != "" {
			if err := d.chat.SendChatMessage(ctx, recipient.ChatAddress, event.Body, attachments); err != nil {
				log.Printf("level=warn component=notifier channel=chat event=%s recipient=%s msg=\"delivery failed\" err=%v", event.Kind, recipient.ChatAddress, err)
			}
		}
	}
}

func (d *Dispatcher) fetchAttachments(ctx context.Context, event NotificationEvent) []domain.UploadedFile {
	if d.storage == nil || len(event.AttachmentURLs) == 0 {
		return nil
	}

	var attachments []domain.UploadedFile
	for _, url := range event.AttachmentURLs {
		data, contentType, err := d.storage.Download(ctx, url)
		if err != nil {
			log.Printf("level=warn component=notifier event=%s msg=\"attachment fetch failed; sending without it\" url=%s err=%v", event.Kind, url, err)
			continue
		}
		attachments = append(attachments, domain.UploadedFile{
			Name:        url,
			ContentType: contentType,
			Data:        data,
		})
	}
	return attachments
}
