// Package discord runs the assistant as a Discord bot. It owns the
// discordgo.Session lifecycle and turns mentions into chat requests whose
// answers stream into an edited reply.
//
// Information Hiding:
// - Gateway intents and handler registration
// - Mention and debug prefix filtering
// - Reply threading through tick markers
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/richinex/cinematic/agent"
	"github.com/richinex/cinematic/chat"
	"github.com/richinex/cinematic/dispatch"
)

// Reply markers. A finished answer carries Done; once quoted in a reply
// thread it is rewritten to Quoted.
const (
	Pending = "⌛"
	Done    = "✅"
	Failed  = "❌"
	Quoted  = "☑️"
)

// MaxTicks bounds how many earlier answers a reply thread may carry.
const MaxTicks = 3

var mentionTag = regexp.MustCompile(`<[@#]&?\d+>`)

var waitingLines = []string{
	"Lights, camera, action! Working on it... 🎬",
	"Popcorn's ready, give me a moment... 🍿",
	"Rolling the film, back in a second... 🎞️",
	"Checking the archives for you... 📼",
	"Taking my seat in the director's chair... 🎩",
}

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token    string
	AdminIDs []string
	// Debug makes the bot answer prefixed messages instead of mentions.
	Debug       bool
	DebugPrefix string
}

func (c Config) isAdmin(id string) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// Handler answers one message. *chat.Service implements it.
type Handler interface {
	Handle(ctx context.Context, in chat.Input, sink agent.Sink) (agent.Response, error)
}

// Session is the subset of *discordgo.Session the bot writes through.
type Session interface {
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot owns the Discord gateway connection.
type Bot struct {
	session *discordgo.Session
	api     Session
	handler Handler
	cfg     Config
	logger  *slog.Logger

	mu     sync.RWMutex
	botID  string
	closed bool
	wg     sync.WaitGroup
}

// New creates a Bot. The gateway connection is opened by Run.
func New(cfg Config, handler Handler) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := newBot(session, handler, cfg)
	b.session = session
	return b, nil
}

func newBot(api Session, handler Handler, cfg Config) *Bot {
	if cfg.DebugPrefix == "" {
		cfg.DebugPrefix = "!"
	}
	return &Bot{
		api:     api,
		handler: handler,
		cfg:     cfg,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (b *Bot) WithLogger(logger *slog.Logger) *Bot {
	b.logger = logger
	return b
}

// Run connects to Discord and answers messages until ctx is cancelled.
// Messages arriving after that are ignored; answers already in flight are
// finished before it returns.
func (b *Bot) Run(ctx context.Context) error {
	removeReady := b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.setBotID(r.User.ID)
		b.logger.Info("discord connected", "user", r.User.Username)
	})
	removeCreate := b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.spawn(ctx, m.Message)
	})

	if err := b.session.Open(); err != nil {
		removeCreate()
		removeReady()
		return fmt.Errorf("discord: open session: %w", err)
	}

	<-ctx.Done()
	removeCreate()
	removeReady()
	b.drain()

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("discord: close session: %w", err)
	}
	b.logger.Info("discord bot closed")
	return ctx.Err()
}

// spawn answers msg in the background and reports whether it did. Answers
// do not inherit cancellation from ctx. After drain it does nothing.
func (b *Bot) spawn(ctx context.Context, msg *discordgo.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	answerCtx := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleMessage(answerCtx, msg)
	}()
	return true
}

// drain stops spawn and waits for running answers.
func (b *Bot) drain() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) setBotID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botID = id
}

func (b *Bot) id() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.botID
}

// handleMessage answers msg if it is addressed to the bot.
func (b *Bot) handleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}

	text, ok := b.userText(msg)
	if !ok {
		return
	}

	history, quoted, ok := b.thread(msg)
	if !ok {
		return
	}

	logger := b.logger.With("user", msg.Author.Username, "user_id", msg.Author.ID, "channel", msg.ChannelID)
	logger.Info("discord message", "text", text)

	waiting := waitingLines[rand.IntN(len(waitingLines))]
	reply, err := b.api.ChannelMessageSendReply(msg.ChannelID, history+Pending+" "+waiting, msg.Reference())
	if err != nil {
		logger.Error("failed to send reply", "error", err)
		return
	}

	sink := &replySink{api: b.api, channelID: reply.ChannelID, messageID: reply.ID, history: history, logger: logger}
	if sink.channelID == "" {
		sink.channelID = msg.ChannelID
	}

	caller := dispatch.Caller{User: msg.Author.ID, Admin: b.cfg.isAdmin(msg.Author.ID)}
	_, err = b.handler.Handle(ctx, chat.Input{Caller: caller, Text: text, Quoted: quoted}, sink)
	if err != nil {
		logger.Error("failed to answer message", "error", err)
		sink.finish(Failed, "Sorry, I couldn't reach my brain just now. Please try again.")
		return
	}
	sink.finish(Done, "All done! 🎬")
}

// userText returns the cleaned text of msg and whether the bot should
// answer it. Without debug mode the bot must be mentioned and prefixed
// messages are left to a debug instance.
func (b *Bot) userText(msg *discordgo.Message) (string, bool) {
	prefixed := strings.HasPrefix(msg.Content, b.cfg.DebugPrefix)
	if b.cfg.Debug != prefixed {
		return "", false
	}
	if !b.cfg.Debug && !b.mentioned(msg) {
		return "", false
	}

	text := strings.ReplaceAll(msg.Content, "\n", " ")
	text = strings.TrimSpace(mentionTag.ReplaceAllString(text, ""))
	if b.cfg.Debug {
		text = strings.TrimSpace(strings.TrimPrefix(text, b.cfg.DebugPrefix))
	}
	return text, text != ""
}

func (b *Bot) mentioned(msg *discordgo.Message) bool {
	id := b.id()
	for _, u := range msg.Mentions {
		if u != nil && u.ID == id {
			return true
		}
	}
	return false
}

// thread resolves the answer msg replies to. history is the quoted answer
// re-marked as Quoted, to be shown above the new reply, and quoted is the
// same text for the chat history. ok is false when msg replies to something
// other than a finished bot answer, or the thread is too long.
func (b *Bot) thread(msg *discordgo.Message) (history, quoted string, ok bool) {
	if msg.MessageReference == nil {
		return "", "", true
	}

	replied := msg.ReferencedMessage
	if replied == nil {
		var err error
		replied, err = b.api.ChannelMessage(msg.ChannelID, msg.MessageReference.MessageID)
		if err != nil {
			b.logger.Warn("failed to fetch replied message", "error", err)
			return "", "", false
		}
	}

	if replied.Author == nil || replied.Author.ID != b.id() ||
		!strings.Contains(replied.Content, Done) ||
		strings.Count(replied.Content, Quoted) > MaxTicks {
		return "", "", false
	}

	history = strings.TrimSpace(strings.ReplaceAll(replied.Content, Done+" ", Quoted+" ")) + "\n"

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(history), "\n") {
		if line = strings.TrimSpace(strings.TrimPrefix(line, Quoted)); line != "" {
			lines = append(lines, line)
		}
	}
	return history, strings.Join(lines, " | "), true
}
