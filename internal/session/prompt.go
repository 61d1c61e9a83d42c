package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/locale"
)

type PromptStatus int

const (
	PromptSelected PromptStatus = iota
	PromptCancelled
	PromptTimedOut
)

// PromptResult is what a prompt resolved to. Value is only meaningful when
// Status is PromptSelected.
type PromptResult[T any] struct {
	Status PromptStatus
	Value  T
}

type ReportKind int

const (
	ReportKindMain ReportKind = iota
	ReportKindSecondary
)

const (
	kindReport  = "report"
	kindAccount = "account"
	kindServer  = "server"
	kindCancel  = "cancel"
)

// guildPrompt asks the user to pick one of guilds by number.
func (m *Manager) guildPrompt(ctx context.Context, user discord.User, dmID string, guilds []discord.Guild) (PromptResult[discord.Guild], error) {
	var list strings.Builder
	for i, g := range guilds {
		fmt.Fprintf(&list, "`%d)` %s\n", i+1, g.Name)
	}
	promptID, err := m.discord.SendMessage(dmID, discord.OutgoingMessage{
		Content: locale.Sprintf(m.lang(user.ID), locale.MsgGuildSelect),
		Embeds:  []discord.Embed{{Description: list.String(), Color: colorSuccess}},
	})
	if err != nil {
		return PromptResult[discord.Guild]{}, fmt.Errorf("failed to send guild prompt: %w", err)
	}
	defer func() {
		if err := m.discord.DeleteMessage(dmID, promptID); err != nil {
			slog.Debug("failed to delete guild prompt", "channel_id", dmID, "error", err)
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.GuildSelectTimeout)
	defer cancel()
	reply, err := m.discord.WaitForMessage(waitCtx, func(msg discord.Message) bool {
		return msg.Author.ID == user.ID && msg.ChannelID == dmID
	})
	if errors.Is(err, context.DeadlineExceeded) {
		m.notify(dmID, messageGuildSelectExpiry)
		return PromptResult[discord.Guild]{Status: PromptTimedOut}, nil
	}
	if err != nil {
		return PromptResult[discord.Guild]{}, fmt.Errorf("failed to wait for guild selection: %w", err)
	}

	answer := strings.TrimSpace(reply.Content)
	if strings.EqualFold(answer, "cancel") {
		return PromptResult[discord.Guild]{Status: PromptCancelled}, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || len(answer) > 2 || n < 1 || n > len(guilds) {
		m.notify(dmID, messageGuildSelectBad)
		return PromptResult[discord.Guild]{Status: PromptCancelled}, nil
	}
	return PromptResult[discord.Guild]{Status: PromptSelected, Value: guilds[n-1]}, nil
}

// reportKindPrompt shows the report type buttons and waits for one press.
func (m *Manager) reportKindPrompt(ctx context.Context, user discord.User, dmID, guildName string) (PromptResult[ReportKind], error) {
	base := fmt.Sprintf("modbot:kind:%d:", m.promptSeq.Add(1))
	lang := m.lang(user.ID)
	embed := discord.Embed{Description: fmt.Sprintf(messageReportKindFormat, guildName), Color: colorButton}
	promptID, err := m.discord.SendMessage(dmID, discord.OutgoingMessage{
		Embeds: []discord.Embed{embed},
		Buttons: []discord.Button{
			{CustomID: base + kindReport, Label: locale.Sprintf(lang, locale.MsgButtonReport), Style: discord.ButtonPrimary},
			{CustomID: base + kindAccount, Label: locale.Sprintf(lang, locale.MsgButtonAccount), Style: discord.ButtonPrimary},
			{CustomID: base + kindServer, Label: locale.Sprintf(lang, locale.MsgButtonServer), Style: discord.ButtonPrimary},
			{CustomID: base + kindCancel, Label: locale.Sprintf(lang, locale.MsgButtonCancel), Style: discord.ButtonDanger},
		},
	})
	if err != nil {
		return PromptResult[ReportKind]{}, fmt.Errorf("failed to send report type prompt: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ReportKindTimeout)
	defer cancel()
	press, err := m.discord.WaitForComponent(waitCtx, func(ev discord.InteractionEvent) bool {
		return ev.User.ID == user.ID && strings.HasPrefix(ev.CustomID, base)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		embed.Description = messageReportKindExpiry
		if err := m.discord.EditMessage(dmID, promptID, discord.OutgoingMessage{Embeds: []discord.Embed{embed}, ClearButtons: true}); err != nil {
			slog.Debug("failed to expire report type prompt", "channel_id", dmID, "error", err)
		}
		return PromptResult[ReportKind]{Status: PromptTimedOut}, nil
	}
	if err != nil {
		return PromptResult[ReportKind]{}, fmt.Errorf("failed to wait for report type: %w", err)
	}

	if press.Locale != "" {
		m.store.SetLocale(user.ID, locale.Normalize(press.Locale))
		lang = m.lang(user.ID)
	}
	choice := strings.TrimPrefix(press.CustomID, base)
	ack := locale.MsgFirstMessageAck
	if choice == kindCancel {
		ack = locale.MsgCancelAck
	}
	if press.Respond != nil {
		if err := press.Respond(discord.InteractionResponse{Content: locale.Sprintf(lang, ack), Update: true}); err != nil {
			slog.Warn("failed to acknowledge report type", "user_id", user.ID, "error", err)
		}
	}

	switch choice {
	case kindReport, kindAccount:
		return PromptResult[ReportKind]{Status: PromptSelected, Value: ReportKindMain}, nil
	case kindServer:
		return PromptResult[ReportKind]{Status: PromptSelected, Value: ReportKindSecondary}, nil
	}
	return PromptResult[ReportKind]{Status: PromptCancelled}, nil
}
