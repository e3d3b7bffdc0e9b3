package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"plant-downtime/internal/downtime/application"
	"plant-downtime/internal/downtime/domain"
	"plant-downtime/internal/downtime/infrastructure/memory"
	"plant-downtime/internal/downtime/infrastructure/xlsx"
	"plant-downtime/internal/observability/metrics"
	tg "plant-downtime/internal/telegram"
)

const (
	pollTimeout  = 30 * time.Second
	pollBackoff  = 3 * time.Second
	msgNoAccess  = "⛔ У вас нет прав для этой команды."
	msgCancelled = "Действие отменено."
	msgExpired   = "Сессия истекла. Начните заново."
	msgUnknown   = "Неизвестная команда. Воспользуйтесь меню."
)

// Bot sends chat messages.
type Bot interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
	SendMessageWithMarkup(ctx context.Context, chatID, text, parseMode string, markup any) error
	EditMessageText(ctx context.Context, chatID string, messageID int64, text, parseMode string, markup *tg.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// UpdateSource long-polls chat updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tg.Update, error)
}

// GroupLister lists responsible groups.
type GroupLister interface {
	LoadGroups(ctx context.Context) ([]xlsx.Group, error)
}

// Refresher reloads the worksheet cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Deps are the collaborators of the chat handler.
type Deps struct {
	Bot       Bot
	Reports   *application.ReportService
	Status    *application.StatusService
	Records   *application.RecordService
	Roles     *application.RoleService
	Groups    GroupLister
	Active    application.ActiveDowntimeReader
	Refresher Refresher
	Registry  domain.Registry
	Sessions  *memory.SessionStore
	Location  *time.Location
	Logger    *log.Logger
}

// Handler routes chat updates to report commands and conversation flows.
type Handler struct {
	bot       Bot
	reports   *application.ReportService
	status    *application.StatusService
	records   *application.RecordService
	roles     *application.RoleService
	groups    GroupLister
	active    application.ActiveDowntimeReader
	refresher Refresher
	registry  domain.Registry
	sessions  *memory.SessionStore
	loc       *time.Location
	logger    *log.Logger
}

// NewHandler constructs a chat handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Bot == nil || deps.Reports == nil || deps.Status == nil || deps.Records == nil || deps.Roles == nil {
		return nil, errors.New("chat handler: missing dependency")
	}
	if deps.Active == nil || deps.Sessions == nil {
		return nil, errors.New("chat handler: missing state store")
	}
	if deps.Location == nil {
		return nil, domain.ErrNilLocation
	}
	return &Handler{
		bot:       deps.Bot,
		reports:   deps.Reports,
		status:    deps.Status,
		records:   deps.Records,
		roles:     deps.Roles,
		groups:    deps.Groups,
		active:    deps.Active,
		refresher: deps.Refresher,
		registry:  deps.Registry,
		sessions:  deps.Sessions,
		loc:       deps.Location,
		logger:    deps.Logger,
	}, nil
}

// Run polls updates until ctx is done.
func (h *Handler) Run(ctx context.Context, source UpdateSource) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := source.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logf("chat: poll failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			h.handleSafely(ctx, update)
		}
	}
}

func (h *Handler) handleSafely(ctx context.Context, update tg.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logf("chat: update %d panic: %v", update.UpdateID, r)
		}
	}()
	h.Handle(ctx, update)
}

// Handle processes one update.
func (h *Handler) Handle(ctx context.Context, update tg.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		metrics.IncChatUpdate("message")
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		metrics.IncChatUpdate("callback")
		h.handleCallback(ctx, update.CallbackQuery)
	default:
		metrics.IncChatUpdate("ignored")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tg.Message) {
	user := *msg.From
	userID := tg.FormatChatID(user.ID)
	chatID := tg.FormatChatID(msg.Chat.ID)
	text := strings.TrimSpace(msg.Text)

	switch text {
	case "/start":
		h.sessions.Clear(user.ID)
		h.start(ctx, chatID, user)
		return
	case "/cancel", CmdCancel:
		h.sessions.Clear(user.ID)
		h.send(ctx, chatID, msgCancelled)
		return
	case CmdReportCurrent, CmdReportPrevious:
		if h.requireAdmin(ctx, chatID, userID) {
			shift := domain.ShiftCurrent
			if text == CmdReportPrevious {
				shift = domain.ShiftPrevious
			}
			h.sendReport(ctx, chatID, shift, h.reports.DetailedReport)
		}
		return
	case CmdSummary:
		if h.requireAdmin(ctx, chatID, userID) {
			h.sendReport(ctx, chatID, domain.ShiftCurrent, h.reports.Summary)
		}
		return
	case CmdLineStatus:
		if h.requireRole(ctx, chatID, userID) {
			h.sendMarkdown(ctx, chatID, h.status.Text())
		}
		return
	case CmdRefresh:
		if h.requireAdmin(ctx, chatID, userID) {
			h.refresh(ctx, chatID)
		}
		return
	case CmdBackfill:
		if h.requireAdmin(ctx, chatID, userID) {
			h.sessions.Start(user.ID, flowBackfill, stepSite)
			h.sendMarkup(ctx, chatID, "Выберите площадку:", sitesKeyboard(h.registry))
		}
		return
	case CmdRoles:
		if h.requireAdmin(ctx, chatID, userID) {
			h.sessions.Start(user.ID, flowRoles, stepUserID)
			h.send(ctx, chatID, "Введите ID пользователя Telegram:")
		}
		return
	case CmdReportDowntime:
		if h.requireRole(ctx, chatID, userID) {
			h.sessions.Start(user.ID, flowIncident, stepSite)
			h.sendMarkup(ctx, chatID, "Выберите площадку:", sitesKeyboard(h.registry))
		}
		return
	case CmdFinishDowntime:
		if h.requireRole(ctx, chatID, userID) {
			h.startFinish(ctx, chatID, user.ID)
		}
		return
	}

	session, ok := h.sessions.Get(user.ID)
	if !ok {
		h.send(ctx, chatID, msgUnknown)
		return
	}
	switch session.Flow {
	case flowBackfill:
		h.backfillText(ctx, chatID, user, session, text)
	case flowRoles:
		h.rolesText(ctx, chatID, user, session, text)
	case flowFinish:
		h.finishText(ctx, chatID, user, session, text)
	default:
		h.send(ctx, chatID, "Воспользуйтесь кнопками выше.")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cq *tg.CallbackQuery) {
	if err := h.bot.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
		h.logf("chat: answer callback: %v", err)
	}
	if cq.Message == nil {
		return
	}
	reply := callbackReply{
		chatID:    tg.FormatChatID(cq.Message.Chat.ID),
		messageID: cq.Message.MessageID,
	}
	if cq.Data == cbCancel {
		h.sessions.Clear(cq.From.ID)
		h.edit(ctx, reply, msgCancelled, nil)
		return
	}
	session, ok := h.sessions.Get(cq.From.ID)
	if !ok {
		h.edit(ctx, reply, msgExpired, nil)
		return
	}
	switch session.Flow {
	case flowBackfill, flowIncident:
		h.formCallback(ctx, reply, cq.From, session, cq.Data)
	case flowFinish:
		h.finishCallback(ctx, reply, cq.From, session, cq.Data)
	case flowRoles:
		h.rolesCallback(ctx, reply, cq.From, session, cq.Data)
	default:
		h.edit(ctx, reply, msgExpired, nil)
	}
}

func (h *Handler) start(ctx context.Context, chatID string, user tg.User) {
	userID := tg.FormatChatID(user.ID)
	switch {
	case h.roles.IsAdmin(userID):
		h.sendMarkup(ctx, chatID, fmt.Sprintf("Здравствуйте, %s! Вы вошли как %s.", user.FullName(), h.roles.Role(userID)), adminKeyboard())
	case h.roles.Role(userID) != "":
		h.sendMarkup(ctx, chatID, fmt.Sprintf("Здравствуйте, %s! Вы вошли как %s.", user.FullName(), h.roles.Role(userID)), employeeKeyboard())
	default:
		h.send(ctx, chatID, fmt.Sprintf("У вас нет доступа к боту. Ваш ID: %s. Обратитесь к администратору.", userID))
	}
}

func (h *Handler) sendReport(ctx context.Context, chatID string, shift domain.Shift, render func(domain.ShiftWindow) string) {
	window, err := h.reports.Window(shift)
	if err != nil {
		h.logf("chat: resolve window: %v", err)
		h.send(ctx, chatID, "Не удалось определить смену.")
		return
	}
	h.sendMarkdown(ctx, chatID, render(window))
}

func (h *Handler) refresh(ctx context.Context, chatID string) {
	if h.refresher == nil {
		h.send(ctx, chatID, "Обновление кэша недоступно.")
		return
	}
	if err := h.refresher.Refresh(ctx); err != nil {
		h.send(ctx, chatID, fmt.Sprintf("Не удалось обновить кэш: %v", err))
		return
	}
	if err := h.roles.Reload(ctx); err != nil {
		h.logf("chat: reload roles: %v", err)
	}
	h.send(ctx, chatID, "Кэш обновлен.")
}

func (h *Handler) requireAdmin(ctx context.Context, chatID, userID string) bool {
	if h.roles.IsAdmin(userID) {
		return true
	}
	h.send(ctx, chatID, msgNoAccess)
	return false
}

func (h *Handler) requireRole(ctx context.Context, chatID, userID string) bool {
	if h.roles.Role(userID) != "" {
		return true
	}
	h.send(ctx, chatID, msgNoAccess)
	return false
}

type callbackReply struct {
	chatID    string
	messageID int64
}

func (h *Handler) send(ctx context.Context, chatID, text string) {
	if err := h.bot.SendMessage(ctx, chatID, text, ""); err != nil {
		h.logf("chat: send to %s: %v", chatID, err)
	}
}

func (h *Handler) sendMarkdown(ctx context.Context, chatID, text string) {
	if err := h.bot.SendMessage(ctx, chatID, text, application.ParseModeMarkdown); err != nil {
		h.logf("chat: send to %s: %v", chatID, err)
	}
}

func (h *Handler) sendMarkup(ctx context.Context, chatID, text string, markup any) {
	if err := h.bot.SendMessageWithMarkup(ctx, chatID, text, "", markup); err != nil {
		h.logf("chat: send to %s: %v", chatID, err)
	}
}

func (h *Handler) edit(ctx context.Context, reply callbackReply, text string, markup *tg.InlineKeyboardMarkup) {
	if err := h.bot.EditMessageText(ctx, reply.chatID, reply.messageID, text, "", markup); err != nil {
		h.logf("chat: edit %s/%d: %v", reply.chatID, reply.messageID, err)
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

func authorOf(user tg.User) application.Author {
	return application.Author{
		ID:       tg.FormatChatID(user.ID),
		Username: user.Username,
		FullName: user.FullName(),
	}
}
