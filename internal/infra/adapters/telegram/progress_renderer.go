package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"divination-ai/internal/domain/model"
	"divination-ai/internal/infra/i18n"
	"divination-ai/internal/usecase"
)

var _ usecase.SessionObserver = (*ProgressRenderer)(nil)

// Telegram rejects longer message texts.
const maxMessageLen = 4096

// Sender is the slice of *tgbotapi.BotAPI the renderer needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBotSender connects to the Bot API with token.
func NewBotSender(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	return tgbotapi.NewBotAPI(token)
}

// ProgressRenderer mirrors one session into a single chat message: the first
// snapshot is sent, later ones edit it. Progress edits are throttled to
// minEdit; state changes always go out. Only the latest pending snapshot is
// kept, so a slow Bot API never blocks the session.
type ProgressRenderer struct {
	sender  Sender
	chatID  int64
	minEdit time.Duration
	log     *zerolog.Logger
	tr      *i18n.Translator

	mu      sync.Mutex
	pending *update
	wake    chan struct{}

	// owned by Run
	msgID    int
	last     string
	lastEdit time.Time
}

type update struct {
	text  string
	force bool
}

func NewProgressRenderer(sender Sender, chatID int64, minEdit time.Duration, tr *i18n.Translator, logger *zerolog.Logger) *ProgressRenderer {
	if minEdit <= 0 {
		minEdit = 3 * time.Second
	}
	l := logger.With().Str("component", "TelegramRenderer").Int64("chat_id", chatID).Logger()
	return &ProgressRenderer{
		sender:  sender,
		chatID:  chatID,
		minEdit: minEdit,
		log:     &l,
		tr:      tr,
		wake:    make(chan struct{}, 1),
	}
}

func (r *ProgressRenderer) OnState(snap model.SessionSnapshot) {
	r.push(update{text: FormatSnapshot(r.tr, snap), force: true})
}

func (r *ProgressRenderer) OnProgress(snap model.SessionSnapshot) {
	r.push(update{text: FormatSnapshot(r.tr, snap)})
}

func (r *ProgressRenderer) push(u update) {
	r.mu.Lock()
	// a queued state change must not be downgraded by a later progress tick
	if r.pending != nil && r.pending.force {
		u.force = true
	}
	r.pending = &u
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *ProgressRenderer) take() *update {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.pending
	r.pending = nil
	return u
}

// Run delivers snapshots until ctx is done, then flushes the last pending one.
func (r *ProgressRenderer) Run(ctx context.Context) {
	for {
		select {
		case <-r.wake:
			if u := r.take(); u != nil {
				r.deliver(*u)
			}
		case <-ctx.Done():
			if u := r.take(); u != nil {
				u.force = true
				r.deliver(*u)
			}
			return
		}
	}
}

func (r *ProgressRenderer) deliver(u update) {
	if u.text == r.last {
		return
	}
	if !u.force && r.msgID != 0 && time.Since(r.lastEdit) < r.minEdit {
		return
	}

	var c tgbotapi.Chattable
	if r.msgID == 0 {
		c = tgbotapi.NewMessage(r.chatID, u.text)
	} else {
		c = tgbotapi.NewEditMessageText(r.chatID, r.msgID, u.text)
	}
	msg, err := r.sender.Send(c)
	if err != nil {
		r.log.Warn().Err(err).Msg("telegram send failed")
		return
	}
	if r.msgID == 0 {
		r.msgID = msg.MessageID
	}
	r.last = u.text
	r.lastEdit = time.Now()
}

var messageKeys = map[string]string{
	usecase.MsgTimedOut:     "msg.timed_out",
	usecase.MsgJobFailed:    "msg.job_failed",
	usecase.MsgJobCancelled: "msg.job_cancelled",
	usecase.MsgCancelled:    "msg.cancelled",
}

// LocalMessage translates the session's own status notes. Interpretations
// and backend error texts pass through unchanged.
func LocalMessage(tr *i18n.Translator, msg string) string {
	if key, ok := messageKeys[msg]; ok {
		return tr.T(key)
	}
	return msg
}

// FormatSnapshot renders a snapshot as plain message text.
func FormatSnapshot(tr *i18n.Translator, snap model.SessionSnapshot) string {
	var b strings.Builder
	b.WriteString(tr.T("divination", tr.T("mode."+string(snap.Mode))))
	b.WriteString("\n")
	if snap.Provider != "" {
		b.WriteString(tr.T("provider", snap.Provider))
		b.WriteString("\n")
	}
	switch snap.State {
	case model.SessionPolling:
		fmt.Fprintf(&b, "%s %s %3.0f%% (%s)", tr.T("interpreting"), ProgressBar(snap.Progress, 20), snap.Progress, snap.Elapsed.Round(time.Second))
		if snap.Cancelling {
			b.WriteString("\n")
			b.WriteString(tr.T("cancelling"))
		}
	case model.SessionCompleted:
		b.WriteString(tr.T("interpretation"))
		b.WriteString("\n")
		b.WriteString(snap.Message)
	default:
		b.WriteString(tr.T("status", tr.T("state."+string(snap.State))))
		if snap.Message != "" {
			b.WriteString("\n")
			b.WriteString(LocalMessage(tr, snap.Message))
		}
	}
	out := b.String()
	if r := []rune(out); len(r) > maxMessageLen {
		out = string(r[:maxMessageLen-3]) + "..."
	}
	return out
}

// ProgressBar draws pct (0..100) in width cells.
func ProgressBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
