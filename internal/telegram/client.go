package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	// MaxMessageLength is the longest text accepted in one message.
	MaxMessageLength = 4096

	defaultPollTimeout = 30 * time.Second
)

// Keyboards are sent as-is, so the library markup types are used directly.
type (
	InlineKeyboardMarkup = tgbotapi.InlineKeyboardMarkup
	ReplyKeyboardMarkup  = tgbotapi.ReplyKeyboardMarkup
)

// Client adapts the Bot API library to the chat handler.
type Client struct {
	bot   *tgbotapi.BotAPI
	token string
}

// NewClient constructs a Bot API client. The token is checked with getMe.
func NewClient(baseURL, token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram: empty token")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/bot%s/%s"
	httpClient := &http.Client{Timeout: defaultPollTimeout + 10*time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", redact(err, token))
	}
	return &Client{bot: bot, token: token}, nil
}

// User is a chat user.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Chat is a conversation.
type Chat struct {
	ID int64
}

// Message is an incoming message.
type Message struct {
	MessageID int64
	From      *User
	Chat      Chat
	Text      string
}

// CallbackQuery is an inline keyboard press.
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

// Update is one incoming event.
type Update struct {
	UpdateID      int64
	Message       *Message
	CallbackQuery *CallbackQuery
}

// SendMessage sends text to chatID, split into chunks of MaxMessageLength.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	return c.SendMessageWithMarkup(ctx, chatID, text, parseMode, nil)
}

// SendMessageWithMarkup sends text with a keyboard attached to the last chunk.
// A chunk rejected for broken markup is resent as plain text.
func (c *Client) SendMessageWithMarkup(ctx context.Context, chatID, text, parseMode string, markup any) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	chunks := SplitMessage(text, MaxMessageLength)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, chunk)
		msg.ParseMode = parseMode
		if markup != nil && i == len(chunks)-1 {
			msg.ReplyMarkup = markup
		}
		_, err := c.bot.Send(msg)
		if err != nil && parseMode != "" && IsParseError(err) {
			msg.ParseMode = ""
			_, err = c.bot.Send(msg)
		}
		if err != nil {
			return fmt.Errorf("telegram: sendMessage: %w", redact(err, c.token))
		}
	}
	return nil
}

// EditMessageText replaces the text and inline keyboard of a message.
func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int64, text, parseMode string, markup *InlineKeyboardMarkup) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(id, int(messageID), text)
	edit.ParseMode = parseMode
	edit.ReplyMarkup = markup
	if _, err := c.bot.Request(edit); err != nil {
		return fmt.Errorf("telegram: editMessageText: %w", redact(err, c.token))
	}
	return nil
}

// AnswerCallbackQuery acknowledges an inline keyboard press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", redact(err, c.token))
	}
	return nil
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// GetUpdates long-polls for updates after offset. It returns early when ctx
// is done; the pending request finishes within the poll timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	done := make(chan pollResult, 1)
	go func() {
		updates, err := c.bot.GetUpdates(cfg)
		done <- pollResult{updates: updates, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("telegram: getUpdates: %w", redact(res.err, c.token))
		}
		out := make([]Update, 0, len(res.updates))
		for _, update := range res.updates {
			out = append(out, fromUpdate(update))
		}
		return out, nil
	}
}

// IsParseError reports whether the API rejected a message's markup.
func IsParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}

// FormatChatID renders a numeric chat id.
func FormatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SplitMessage splits text into chunks of at most limit runes. Each chunk ends
// at the last newline that fits, so inline markup within a line stays whole;
// a line longer than limit is cut hard.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func parseChatID(chatID string) (int64, error) {
	if chatID == "" {
		return 0, errors.New("telegram: empty chat id")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", chatID)
	}
	return id, nil
}

func fromUpdate(update tgbotapi.Update) Update {
	out := Update{UpdateID: int64(update.UpdateID)}
	if update.Message != nil {
		out.Message = fromMessage(update.Message)
	}
	if cq := update.CallbackQuery; cq != nil {
		out.CallbackQuery = &CallbackQuery{
			ID:      cq.ID,
			Message: fromMessage(cq.Message),
			Data:    cq.Data,
		}
		if cq.From != nil {
			out.CallbackQuery.From = fromUser(cq.From)
		}
	}
	return out
}

func fromMessage(msg *tgbotapi.Message) *Message {
	if msg == nil {
		return nil
	}
	out := &Message{MessageID: int64(msg.MessageID), Text: msg.Text}
	if msg.From != nil {
		user := fromUser(msg.From)
		out.From = &user
	}
	if msg.Chat != nil {
		out.Chat = Chat{ID: msg.Chat.ID}
	}
	return out
}

func fromUser(user *tgbotapi.User) User {
	return User{
		ID:        user.ID,
		Username:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// redact drops the token from transport errors, which embed the request URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
