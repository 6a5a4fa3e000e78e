package vkteams

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/format"
	"github.com/m3rciful/vkbot/core/vkteams/keyboard"
	"github.com/m3rciful/vkbot/core/vkteams/retry"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

// SendOption sets optional parameters of message calls.
type SendOption func(transport.Params)

// WithKeyboard attaches an inline keyboard.
func WithKeyboard(kb *keyboard.Markup) SendOption {
	return func(p transport.Params) {
		if !kb.Empty() {
			p.Set("inlineKeyboardMarkup", kb)
		}
	}
}

// WithParseMode makes the server parse markup in the text.
func WithParseMode(mode format.ParseMode) SendOption {
	return func(p transport.Params) {
		if mode != "" {
			p.Set("parseMode", mode)
		}
	}
}

// WithFormat attaches explicit formatting spans.
func WithFormat(f format.Format) SendOption {
	return func(p transport.Params) {
		if len(f) > 0 {
			p.Set("format", f)
		}
	}
}

// WithReply quotes the given messages.
func WithReply(msgIDs ...string) SendOption {
	return func(p transport.Params) {
		if len(msgIDs) > 0 {
			p.Set("replyMsgId", msgIDs)
		}
	}
}

// WithForward forwards messages of another chat.
func WithForward(chatID string, msgIDs ...string) SendOption {
	return func(p transport.Params) {
		if chatID != "" && len(msgIDs) > 0 {
			p.Set("forwardChatId", chatID).Set("forwardMsgId", msgIDs)
		}
	}
}

func applyOptions(p transport.Params, opts []SendOption) transport.Params {
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}
	return p
}

// BotInfo is the answer of self/get.
type BotInfo struct {
	UserID    string `json:"userId"`
	Nick      string `json:"nick"`
	FirstName string `json:"firstName"`
	About     string `json:"about"`
	Photo     []struct {
		URL string `json:"url"`
	} `json:"photo"`
}

// FileInfo is the answer of files/getInfo.
type FileInfo struct {
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Sent identifies a message created by a send call. FileID is set for uploads.
type Sent struct {
	MsgID  string `json:"msgId"`
	FileID string `json:"fileId"`
}

// call runs req under the request retry policy and turns "ok": false into *transport.APIError.
func (b *Bot) call(ctx context.Context, req transport.Request) (transport.Response, error) {
	resp, err := retry.Call(ctx, b.requests, req.Endpoint, func(ctx context.Context) (transport.Response, error) {
		return b.client.Do(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		apiErr := &transport.APIError{Endpoint: req.Endpoint, Description: resp.String("description")}
		logger.Warn(ctx, "vk", "request.not_ok", slog.String("endpoint", req.Endpoint), logger.Err(apiErr))
		return resp, apiErr
	}
	return resp, nil
}

func (b *Bot) send(ctx context.Context, req transport.Request) (Sent, error) {
	resp, err := b.call(ctx, req)
	if err != nil {
		return Sent{}, err
	}
	var s Sent
	if err := resp.Into(&s); err != nil {
		return Sent{}, fmt.Errorf("%w: %s: %v", transport.ErrProtocol, req.Endpoint, err)
	}
	return s, nil
}

// SelfGet returns information about the bot account.
func (b *Bot) SelfGet(ctx context.Context) (BotInfo, error) {
	resp, err := b.call(ctx, transport.Request{Endpoint: "self/get"})
	if err != nil {
		return BotInfo{}, err
	}
	var info BotInfo
	if err := resp.Into(&info); err != nil {
		return BotInfo{}, fmt.Errorf("%w: self/get: %v", transport.ErrProtocol, err)
	}
	return info, nil
}

// SendText sends a text message and returns its id.
func (b *Bot) SendText(ctx context.Context, chatID, text string, opts ...SendOption) (string, error) {
	p := applyOptions(transport.Params{"chatId": chatID, "text": text}, opts)
	s, err := b.send(ctx, transport.Request{Endpoint: "messages/sendText", Params: p})
	return s.MsgID, err
}

// SendTextAsync queues SendText on the outbox.
func (b *Bot) SendTextAsync(ctx context.Context, chatID, text string, opts ...SendOption) error {
	return b.outbox.Enqueue(ctx, "messages/sendText", func(ctx context.Context) error {
		_, err := b.SendText(ctx, chatID, text, opts...)
		return err
	})
}

// EditText replaces the text of a message sent by the bot.
func (b *Bot) EditText(ctx context.Context, chatID, msgID, text string, opts ...SendOption) error {
	p := applyOptions(transport.Params{"chatId": chatID, "msgId": msgID, "text": text}, opts)
	_, err := b.call(ctx, transport.Request{Endpoint: "messages/editText", Params: p})
	return err
}

// DeleteMessages deletes messages in a chat.
func (b *Bot) DeleteMessages(ctx context.Context, chatID string, msgIDs ...string) error {
	p := transport.Params{"chatId": chatID, "msgId": msgIDs}
	_, err := b.call(ctx, transport.Request{Endpoint: "messages/deleteMessages", Params: p})
	return err
}

// SendFile uploads file with an optional caption.
func (b *Bot) SendFile(ctx context.Context, chatID string, file transport.FilePart, caption string, opts ...SendOption) (Sent, error) {
	p := applyOptions(transport.Params{"chatId": chatID}, opts)
	if caption != "" {
		p.Set("caption", caption)
	}
	return b.send(ctx, transport.Request{Endpoint: "messages/sendFile", Params: p, File: &file})
}

// SendFileByID resends a previously uploaded file.
func (b *Bot) SendFileByID(ctx context.Context, chatID, fileID, caption string, opts ...SendOption) (string, error) {
	p := applyOptions(transport.Params{"chatId": chatID, "fileId": fileID}, opts)
	if caption != "" {
		p.Set("caption", caption)
	}
	s, err := b.send(ctx, transport.Request{Endpoint: "messages/sendFile", Params: p})
	return s.MsgID, err
}

// SendVoice uploads a voice message. The server expects aac, ogg or m4a audio.
func (b *Bot) SendVoice(ctx context.Context, chatID string, file transport.FilePart, opts ...SendOption) (Sent, error) {
	p := applyOptions(transport.Params{"chatId": chatID}, opts)
	return b.send(ctx, transport.Request{Endpoint: "messages/sendVoice", Params: p, File: &file})
}

// SendVoiceByID resends a previously uploaded voice message.
func (b *Bot) SendVoiceByID(ctx context.Context, chatID, fileID string, opts ...SendOption) (string, error) {
	p := applyOptions(transport.Params{"chatId": chatID, "fileId": fileID}, opts)
	s, err := b.send(ctx, transport.Request{Endpoint: "messages/sendVoice", Params: p})
	return s.MsgID, err
}

// AnswerCallbackQuery acknowledges a button press, optionally showing text or opening url.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, queryID, text string, showAlert bool, url string) error {
	p := transport.Params{"queryId": queryID}
	if text != "" {
		p.Set("text", text)
	}
	if showAlert {
		p.Set("showAlert", true)
	}
	if url != "" {
		p.Set("url", url)
	}
	_, err := b.call(ctx, transport.Request{Endpoint: "messages/answerCallbackQuery", Params: p})
	return err
}

// GetFileInfo returns metadata and the download URL of a file.
func (b *Bot) GetFileInfo(ctx context.Context, fileID string) (FileInfo, error) {
	resp, err := b.call(ctx, transport.Request{Endpoint: "files/getInfo", Params: transport.Params{"fileId": fileID}})
	if err != nil {
		return FileInfo{}, err
	}
	var info FileInfo
	if err := resp.Into(&info); err != nil {
		return FileInfo{}, fmt.Errorf("%w: files/getInfo: %v", transport.ErrProtocol, err)
	}
	return info, nil
}

// DownloadFile fetches the content behind a FileInfo URL.
func (b *Bot) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	return retry.Call(ctx, b.requests, "download", func(ctx context.Context) ([]byte, error) {
		return b.client.Download(ctx, url)
	})
}
