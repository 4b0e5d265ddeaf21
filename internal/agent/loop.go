// Package agent implements the chat orchestration loop.
//
// One call to Loop.Run turns a user message into a reply: it resolves
// the conversation, persists the user message, replays recent history
// to the model with the task tool catalog, executes any tool calls the
// model requests, and asks the model once more for the final text.
// Every artifact is persisted as soon as it is produced.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/tick/internal/history"
	"github.com/nugget/tick/internal/llm"
	"github.com/nugget/tick/internal/metrics"
	"github.com/nugget/tick/internal/prompts"
	"github.com/nugget/tick/internal/tools"
	"github.com/nugget/tick/internal/transcript"
)

// DefaultHistoryLimit is the number of persisted rows replayed to the
// model. A tool-call turn with N results uses N+1 rows.
const DefaultHistoryLimit = 20

// DefaultApology is returned when the loop cannot complete a request.
const DefaultApology = "I encountered an error processing your request. Please try again."

// Transcripts is the conversation storage the loop drives.
type Transcripts interface {
	FindConversation(ctx context.Context, id, userID string) (*transcript.Conversation, error)
	CreateConversation(ctx context.Context, userID, title string) (*transcript.Conversation, error)
	AppendMessage(ctx context.Context, m *transcript.Message) error
	RecentMessages(ctx context.Context, conversationID string, n int) ([]transcript.Message, error)
}

// User is the authenticated caller.
type User struct {
	ID   string
	Name string
}

// Request is one inbound chat message.
type Request struct {
	User           User
	Message        string
	ConversationID string
}

// Response is the loop's reply. It is always well formed: on failure
// Message holds the apology and ConversationID is set whenever a
// conversation was resolved.
type Response struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`

	// Degraded reports that Message is the apology.
	Degraded bool `json:"-"`
	// ToolCalls counts the tool calls executed for this request.
	ToolCalls int `json:"-"`
}

// Options tunes a Loop.
type Options struct {
	Model        string
	HistoryLimit int
	Apology      string

	// SecondPassTools offers the catalog again on the second exchange.
	// Tool calls requested there are logged and ignored; only the text
	// is used.
	SecondPassTools bool

	Metrics *metrics.Metrics
}

// Loop is the chat orchestration loop. It holds no per-request state and
// is safe for concurrent use.
type Loop struct {
	logger      *slog.Logger
	llm         llm.Client
	transcripts Transcripts
	tasks       tools.TaskStore
	tools       *tools.Registry
	opts        Options
	now         func() time.Time
}

// NewLoop creates a loop. Zero-valued options take their defaults.
func NewLoop(logger *slog.Logger, client llm.Client, transcripts Transcripts, taskStore tools.TaskStore, registry *tools.Registry, opts Options) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}
	return &Loop{
		logger:      logger,
		llm:         client,
		transcripts: transcripts,
		tasks:       taskStore,
		tools:       registry,
		opts:        opts,
		now:         time.Now,
	}
}

// Run executes the loop for one request. It never returns an error;
// failures produce the apology response.
func (l *Loop) Run(ctx context.Context, req *Request) *Response {
	start := time.Now()
	log := l.logger.With("user", req.User.ID)

	conv, err := l.resolveConversation(ctx, req)
	if err != nil {
		return l.degrade(log, "", err, start)
	}
	log = log.With("conversation", conv.ID)
	log.Info("agent loop started", "model", l.opts.Model, "message_len", len(req.Message))

	t := &turn{
		loop: l,
		log:  log,
		conv: conv,
		env:  tools.Env{UserID: req.User.ID, Tasks: l.tasks},
	}
	reply, err := t.run(ctx, req)
	if err != nil {
		return l.degrade(log, conv.ID, err, start)
	}

	l.opts.Metrics.RecordChat(metrics.StatusOK, time.Since(start))
	log.Info("agent loop completed",
		"tool_calls", t.toolCalls,
		"reply_len", len(reply),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &Response{ConversationID: conv.ID, Message: reply, ToolCalls: t.toolCalls}
}

func (l *Loop) degrade(log *slog.Logger, convID string, err error, start time.Time) *Response {
	log.Error("agent loop failed", "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
	l.opts.Metrics.RecordChat(metrics.StatusDegraded, time.Since(start))
	return &Response{ConversationID: convID, Message: l.opts.Apology, Degraded: true}
}

// resolveConversation finds the caller's conversation or starts a new
// one. An id owned by someone else is treated as absent.
func (l *Loop) resolveConversation(ctx context.Context, req *Request) (*transcript.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := l.transcripts.FindConversation(ctx, req.ConversationID, req.User.ID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, transcript.ErrNotFound) {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		l.logger.Debug("conversation not found for user, starting new one",
			"user", req.User.ID, "requested", req.ConversationID)
	}

	conv, err := l.transcripts.CreateConversation(ctx, req.User.ID, transcript.TitleFrom(req.Message))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// turn holds the state of one Run after the conversation is known.
type turn struct {
	loop      *Loop
	log       *slog.Logger
	conv      *transcript.Conversation
	env       tools.Env
	buffer    []llm.Message
	toolCalls int
}

func (t *turn) run(ctx context.Context, req *Request) (string, error) {
	l := t.loop

	if err := t.persist(ctx, transcript.RoleUser, transcript.KindText, req.Message); err != nil {
		return "", err
	}

	rows, err := l.transcripts.RecentMessages(ctx, t.conv.ID, l.opts.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	t.buffer = make([]llm.Message, 0, len(rows)+8)
	t.buffer = append(t.buffer, llm.TextMessage("system", prompts.Orchestrator(l.now(), req.User.Name)))
	t.buffer = append(t.buffer, history.Encode(rows)...)
	t.log.Debug("history assembled", "rows", len(rows), "messages", len(t.buffer))

	first, err := t.exchange(ctx, "first", l.tools.Catalog())
	if err != nil {
		return "", err
	}

	reply := first.Message.Text()
	if len(first.Message.ToolCalls) > 0 {
		if err := t.dispatch(ctx, first.Message); err != nil {
			return "", err
		}

		var catalog []llm.Tool
		if l.opts.SecondPassTools {
			catalog = l.tools.Catalog()
		}
		second, err := t.exchange(ctx, "second", catalog)
		if err != nil {
			return "", err
		}
		if n := len(second.Message.ToolCalls); n > 0 {
			t.log.Warn("ignoring tool calls requested after tool results", "count", n)
		}
		reply = second.Message.Text()
	}

	if reply != "" {
		if err := t.persist(ctx, transcript.RoleAssistant, transcript.KindText, reply); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// exchange sends the buffer to the model, offering catalog if non-nil.
func (t *turn) exchange(ctx context.Context, phase string, catalog []llm.Tool) (*llm.ChatResponse, error) {
	l := t.loop
	req := &llm.ChatRequest{
		Model:    l.opts.Model,
		Messages: t.buffer,
		Tools:    catalog,
	}
	if len(catalog) > 0 {
		req.ToolChoice = llm.ToolChoiceAuto
	}

	t.log.Debug("model exchange",
		"phase", phase,
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	start := time.Now()
	resp, err := l.llm.Chat(ctx, req)
	if err != nil {
		l.opts.Metrics.RecordExchange(phase, metrics.StatusError, time.Since(start), 0, 0)
		return nil, fmt.Errorf("%s model exchange: %w", phase, err)
	}
	l.opts.Metrics.RecordExchange(phase, metrics.StatusOK, time.Since(start), resp.InputTokens, resp.OutputTokens)

	t.log.Debug("model responded",
		"phase", phase,
		"tool_calls", len(resp.Message.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return resp, nil
}

// dispatch persists the assistant's tool-call request, then runs each
// call in the order issued, persisting and buffering every result. A
// failing call yields an error string; only storage failures abort.
func (t *turn) dispatch(ctx context.Context, msg llm.Message) error {
	msg = normalizeCalls(msg)

	record, err := history.EncodeAssistantCalls(msg)
	if err != nil {
		return err
	}
	if err := t.persist(ctx, transcript.RoleAssistant, transcript.KindToolCalls, record); err != nil {
		return err
	}
	t.buffer = append(t.buffer, msg)

	for _, call := range msg.ToolCalls {
		result := t.execute(ctx, call)

		encoded, err := history.EncodeToolResult(call.ID, result)
		if err != nil {
			return err
		}
		if err := t.persist(ctx, transcript.RoleTool, transcript.KindToolResult, encoded); err != nil {
			return err
		}
		t.buffer = append(t.buffer, llm.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    llm.String(result),
		})
	}
	return nil
}

func (t *turn) execute(ctx context.Context, call llm.ToolCall) string {
	l := t.loop
	name := call.Function.Name
	t.toolCalls++

	start := time.Now()
	result, err := l.tools.Execute(ctx, t.env, name, call.Function.Arguments)
	elapsed := time.Since(start)

	label := name
	if _, perr := tools.ParseAction(name); perr != nil {
		label = "unknown"
	}

	if err != nil {
		result = tools.ErrorResult(name, err)
		l.opts.Metrics.RecordToolCall(label, metrics.StatusError, elapsed)
		t.log.Warn("tool call failed",
			"tool", name,
			"call_id", call.ID,
			"error", err,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		return result
	}

	l.opts.Metrics.RecordToolCall(label, metrics.StatusOK, elapsed)
	t.log.Info("tool call executed",
		"tool", name,
		"call_id", call.ID,
		"result_len", len(result),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return result
}

func (t *turn) persist(ctx context.Context, role transcript.Role, kind transcript.Kind, content string) error {
	m := &transcript.Message{
		ConversationID: t.conv.ID,
		Role:           role,
		Kind:           kind,
		Content:        content,
	}
	if err := t.loop.transcripts.AppendMessage(ctx, m); err != nil {
		return fmt.Errorf("persist %s message: %w", role, err)
	}
	return nil
}

// normalizeCalls fills in the call type and any missing call ids so
// every result can be paired with its call.
func normalizeCalls(msg llm.Message) llm.Message {
	calls := make([]llm.ToolCall, len(msg.ToolCalls))
	for i, c := range msg.ToolCalls {
		if c.Type == "" {
			c.Type = "function"
		}
		if c.ID == "" {
			c.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
		}
		calls[i] = c
	}
	msg.Role = "assistant"
	msg.ToolCalls = calls
	return msg
}
