package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"plant-downtime/internal/downtime/application"
	"plant-downtime/internal/downtime/domain"
	"plant-downtime/internal/downtime/infrastructure/memory"
	"plant-downtime/internal/downtime/infrastructure/xlsx"
	tg "plant-downtime/internal/telegram"
)

const (
	flowBackfill = "backfill"
	flowIncident = "incident"
	flowFinish   = "finish"
	flowRoles    = "roles"

	stepSite        = "site"
	stepLine        = "line"
	stepReason      = "reason"
	stepStart       = "start"
	stepEnd         = "end"
	stepDescription = "description"
	stepGroup       = "group"
	stepConfirm     = "confirm"
	stepActive      = "active"
	stepUserID      = "user_id"
	stepRole        = "role"

	keySite        = "site"
	keyLine        = "line"
	keyReason      = "reason"
	keyStart       = "start"
	keyEnd         = "end"
	keyDescription = "description"
	keyGroup       = "group"
	keyUserID      = "user_id"
	keyActiveCount = "active_count"

	formTimeHint = "ДД.ММ.ГГГГ ЧЧ:ММ"
)

func (h *Handler) formCallback(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session, data string) {
	switch {
	case session.Step == stepSite && strings.HasPrefix(data, cbSite):
		siteKey := strings.TrimPrefix(data, cbSite)
		lines, ok := h.registry.SiteLines(siteKey)
		if !ok || len(lines) == 0 {
			h.edit(ctx, reply, "Для этой площадки не настроены линии.", nil)
			h.sessions.Clear(user.ID)
			return
		}
		session.Set(keySite, siteKey)
		session.Step = stepLine
		h.advance(ctx, reply, user, session, "Выберите линию/секцию:", linesKeyboard(lines))

	case session.Step == stepLine && strings.HasPrefix(data, cbLine):
		lineKey := strings.TrimPrefix(data, cbLine)
		if _, err := h.registry.Line(session.Get(keySite), lineKey); err != nil {
			h.edit(ctx, reply, "Неизвестная линия. Начните заново.", nil)
			h.sessions.Clear(user.ID)
			return
		}
		session.Set(keyLine, lineKey)
		session.Step = stepReason
		h.advance(ctx, reply, user, session, "Выберите направление простоя:", reasonsKeyboard(h.registry.Reasons))

	case session.Step == stepReason && strings.HasPrefix(data, cbReason):
		reason, ok := h.registry.Reason(strings.TrimPrefix(data, cbReason))
		if !ok {
			h.edit(ctx, reply, "Неизвестное направление. Начните заново.", nil)
			h.sessions.Clear(user.ID)
			return
		}
		if session.Flow == flowIncident {
			h.beginDowntime(ctx, reply, user, session, reason.Name)
			return
		}
		session.Set(keyReason, reason.Name)
		session.Step = stepStart
		h.advance(ctx, reply, user, session, fmt.Sprintf("Введите время начала простоя (%s):", formTimeHint), nil)

	case session.Step == stepGroup && (strings.HasPrefix(data, cbGroup) || data == cbSkip):
		group := domain.UnspecifiedGroup
		if data != cbSkip {
			name, err := h.groupByIndex(ctx, strings.TrimPrefix(data, cbGroup))
			if err != nil {
				h.logf("chat: resolve group: %v", err)
			} else {
				group = name
			}
		}
		session.Set(keyGroup, group)
		session.Step = stepConfirm
		h.advance(ctx, reply, user, session, h.backfillPreview(session), confirmKeyboard())

	case session.Step == stepConfirm && data == cbConfirm:
		h.saveBackfill(ctx, reply, user, session)

	default:
		h.edit(ctx, reply, msgExpired, nil)
		h.sessions.Clear(user.ID)
	}
}

func (h *Handler) advance(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session, text string, markup *tg.InlineKeyboardMarkup) {
	if !h.sessions.Save(user.ID, session) {
		h.edit(ctx, reply, msgExpired, nil)
		return
	}
	h.edit(ctx, reply, text, markup)
}

func (h *Handler) beginDowntime(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session, reason string) {
	defer h.sessions.Clear(user.ID)
	key, err := h.records.BeginDowntime(ctx, authorOf(user), session.Get(keySite), session.Get(keyLine), reason)
	switch {
	case errors.Is(err, application.ErrLineAlreadyDown):
		h.edit(ctx, reply, fmt.Sprintf("Линия %s / %s уже в простое.", key.Site, key.Line), nil)
	case err != nil:
		h.logf("chat: begin downtime: %v", err)
		h.edit(ctx, reply, "Не удалось зафиксировать простой.", nil)
	default:
		h.edit(ctx, reply, fmt.Sprintf("🔴 Простой зафиксирован: %s / %s (%s).", key.Site, key.Line, reason), nil)
	}
}

func (h *Handler) backfillText(ctx context.Context, chatID string, user tg.User, session *memory.Session, text string) {
	switch session.Step {
	case stepStart:
		start, err := application.ParseFormTime(text, h.loc)
		if err != nil {
			h.send(ctx, chatID, fmt.Sprintf("Неверный формат. Введите время в формате %s:", formTimeHint))
			return
		}
		session.Set(keyStart, start.Format(time.RFC3339))
		session.Step = stepEnd
		h.saveAndSend(ctx, chatID, user, session, fmt.Sprintf("Введите время окончания простоя (%s):", formTimeHint))

	case stepEnd:
		end, err := application.ParseFormTime(text, h.loc)
		if err != nil {
			h.send(ctx, chatID, fmt.Sprintf("Неверный формат. Введите время в формате %s:", formTimeHint))
			return
		}
		start, err := time.Parse(time.RFC3339, session.Get(keyStart))
		if err != nil {
			h.send(ctx, chatID, msgExpired)
			h.sessions.Clear(user.ID)
			return
		}
		if _, err := application.DurationMinutes(start, end); err != nil {
			h.send(ctx, chatID, "Время окончания должно быть позже времени начала. Введите снова:")
			return
		}
		session.Set(keyEnd, end.Format(time.RFC3339))
		session.Step = stepDescription
		h.saveAndSend(ctx, chatID, user, session, "Опишите причину простоя:")

	case stepDescription:
		if text == "" {
			h.send(ctx, chatID, "Описание не может быть пустым.")
			return
		}
		session.Set(keyDescription, text)
		session.Step = stepGroup
		if !h.sessions.Save(user.ID, session) {
			h.send(ctx, chatID, msgExpired)
			return
		}
		h.sendMarkup(ctx, chatID, "Выберите ответственную группу:", groupsKeyboard(h.groupNames(ctx)))

	default:
		h.send(ctx, chatID, "Воспользуйтесь кнопками выше.")
	}
}

func (h *Handler) saveAndSend(ctx context.Context, chatID string, user tg.User, session *memory.Session, text string) {
	if !h.sessions.Save(user.ID, session) {
		h.send(ctx, chatID, msgExpired)
		return
	}
	h.send(ctx, chatID, text)
}

func (h *Handler) backfillPreview(session *memory.Session) string {
	site, _ := h.registry.Site(session.Get(keySite))
	line, _ := h.registry.Line(session.Get(keySite), session.Get(keyLine))
	start, _ := time.Parse(time.RFC3339, session.Get(keyStart))
	end, _ := time.Parse(time.RFC3339, session.Get(keyEnd))
	minutes, _ := application.DurationMinutes(start, end)
	return fmt.Sprintf("Проверьте данные:\nПлощадка: %s\nЛиния: %s\nНаправление: %s\nНачало: %s\nОкончание: %s\nДлительность: %d мин.\nОписание: %s\nГруппа: %s",
		site.Name, line.Name, session.Get(keyReason),
		start.In(h.loc).Format(domain.FormInputLayout), end.In(h.loc).Format(domain.FormInputLayout),
		minutes, session.Get(keyDescription), session.Get(keyGroup))
}

func (h *Handler) saveBackfill(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session) {
	defer h.sessions.Clear(user.ID)
	start, errStart := time.Parse(time.RFC3339, session.Get(keyStart))
	end, errEnd := time.Parse(time.RFC3339, session.Get(keyEnd))
	if errStart != nil || errEnd != nil {
		h.edit(ctx, reply, msgExpired, nil)
		return
	}
	saved, err := h.records.SavePastDowntime(ctx, authorOf(user), application.PastDowntime{
		SiteKey:          session.Get(keySite),
		LineKey:          session.Get(keyLine),
		Reason:           session.Get(keyReason),
		Start:            start,
		End:              end,
		Description:      session.Get(keyDescription),
		ResponsibleGroup: session.Get(keyGroup),
	})
	if err != nil {
		h.logf("chat: save past downtime: %v", err)
		h.edit(ctx, reply, "❌ Не удалось сохранить запись. Попробуйте позже.", nil)
		return
	}
	h.edit(ctx, reply, fmt.Sprintf("✅ Простой сохранен: заявка №%d, %s / %s, %d мин.",
		saved.Sequence, saved.Site, saved.Line, saved.DurationMinutes), nil)
}

func (h *Handler) groupNames(ctx context.Context) []string {
	if h.groups == nil {
		return nil
	}
	groups, err := h.groups.LoadGroups(ctx)
	if err != nil {
		h.logf("chat: load groups: %v", err)
		return nil
	}
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.Name)
	}
	return names
}

func (h *Handler) groupByIndex(ctx context.Context, raw string) (string, error) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		return "", err
	}
	if h.groups == nil {
		return "", errors.New("no group source")
	}
	groups, err := h.groups.LoadGroups(ctx)
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(groups) {
		return "", fmt.Errorf("group index %d out of range", i)
	}
	return groups[i].Name, nil
}

func (h *Handler) startFinish(ctx context.Context, chatID string, userID int64) {
	active := h.active.ActiveDowntimes()
	if len(active) == 0 {
		h.send(ctx, chatID, "Нет активных простоев.")
		return
	}
	keys := make([]domain.LineKey, 0, len(active))
	for key := range active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Site != keys[j].Site {
			return keys[i].Site < keys[j].Site
		}
		return keys[i].Line < keys[j].Line
	})
	reasons := make([]string, len(keys))
	session := h.sessions.Start(userID, flowFinish, stepActive)
	for i, key := range keys {
		reasons[i] = active[key]
		session.Set(activeKey(i, keySite), key.Site)
		session.Set(activeKey(i, keyLine), key.Line)
	}
	session.Set(keyActiveCount, strconv.Itoa(len(keys)))
	h.sessions.Save(userID, session)
	h.sendMarkup(ctx, chatID, "Выберите линию для завершения простоя:", activeKeyboard(keys, reasons))
}

func (h *Handler) finishCallback(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session, data string) {
	if session.Step != stepActive || !strings.HasPrefix(data, cbActive) {
		h.edit(ctx, reply, msgExpired, nil)
		h.sessions.Clear(user.ID)
		return
	}
	i, err := strconv.Atoi(strings.TrimPrefix(data, cbActive))
	count, _ := strconv.Atoi(session.Get(keyActiveCount))
	if err != nil || i < 0 || i >= count {
		h.edit(ctx, reply, msgExpired, nil)
		h.sessions.Clear(user.ID)
		return
	}
	session.Set(keySite, session.Get(activeKey(i, keySite)))
	session.Set(keyLine, session.Get(activeKey(i, keyLine)))
	session.Step = stepDescription
	h.advance(ctx, reply, user, session,
		fmt.Sprintf("%s / %s: опишите причину простоя:", session.Get(keySite), session.Get(keyLine)), nil)
}

func (h *Handler) finishText(ctx context.Context, chatID string, user tg.User, session *memory.Session, text string) {
	if session.Step != stepDescription {
		h.send(ctx, chatID, "Воспользуйтесь кнопками выше.")
		return
	}
	if text == "" {
		h.send(ctx, chatID, "Описание не может быть пустым.")
		return
	}
	defer h.sessions.Clear(user.ID)
	key := domain.LineKey{Site: session.Get(keySite), Line: session.Get(keyLine)}
	saved, err := h.records.FinishDowntime(ctx, authorOf(user), key, text, "")
	switch {
	case errors.Is(err, application.ErrLineNotDown):
		h.send(ctx, chatID, "Эта линия уже работает.")
	case err != nil:
		h.logf("chat: finish downtime: %v", err)
		h.send(ctx, chatID, "❌ Не удалось сохранить запись. Простой остается активным.")
	default:
		h.send(ctx, chatID, fmt.Sprintf("🟢 Простой завершен: заявка №%d, %s / %s, %d мин.",
			saved.Sequence, saved.Site, saved.Line, saved.DurationMinutes))
	}
}

func (h *Handler) rolesText(ctx context.Context, chatID string, user tg.User, session *memory.Session, text string) {
	if session.Step != stepUserID {
		h.send(ctx, chatID, "Воспользуйтесь кнопками выше.")
		return
	}
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		h.send(ctx, chatID, "ID пользователя должен быть числом. Введите снова:")
		return
	}
	session.Set(keyUserID, text)
	session.Step = stepRole
	if !h.sessions.Save(user.ID, session) {
		h.send(ctx, chatID, msgExpired)
		return
	}
	h.sendMarkup(ctx, chatID,
		fmt.Sprintf("Пользователь %s. Текущая роль: %s.\nВыберите новую роль:", text, h.roles.RoleLabel(text)),
		rolesKeyboard(h.roles.AllowedRoles()))
}

func (h *Handler) rolesCallback(ctx context.Context, reply callbackReply, user tg.User, session *memory.Session, data string) {
	defer h.sessions.Clear(user.ID)
	if session.Step != stepRole || !strings.HasPrefix(data, cbRole) {
		h.edit(ctx, reply, msgExpired, nil)
		return
	}
	actor := tg.FormatChatID(user.ID)
	if !h.roles.IsAdmin(actor) {
		h.edit(ctx, reply, msgNoAccess, nil)
		return
	}
	target := session.Get(keyUserID)
	choice := strings.TrimPrefix(data, cbRole)
	if choice == roleDelete {
		err := h.roles.Remove(ctx, actor, target)
		switch {
		case errors.Is(err, xlsx.ErrRoleNotFound):
			h.edit(ctx, reply, fmt.Sprintf("У пользователя %s нет роли.", target), nil)
		case err != nil:
			h.logf("chat: remove role: %v", err)
			h.edit(ctx, reply, "❌ Не удалось удалить роль.", nil)
		default:
			h.edit(ctx, reply, fmt.Sprintf("Роль пользователя %s удалена.", target), nil)
		}
		return
	}
	roles := h.roles.AllowedRoles()
	i, err := strconv.Atoi(choice)
	if err != nil || i < 0 || i >= len(roles) {
		h.edit(ctx, reply, msgExpired, nil)
		return
	}
	if err := h.roles.Assign(ctx, actor, target, roles[i]); err != nil {
		h.logf("chat: assign role: %v", err)
		h.edit(ctx, reply, "❌ Не удалось назначить роль.", nil)
		return
	}
	h.edit(ctx, reply, fmt.Sprintf("Пользователю %s назначена роль: %s.", target, roles[i]), nil)
}

func activeKey(i int, field string) string {
	return "active." + strconv.Itoa(i) + "." + field
}
