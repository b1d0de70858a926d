// Package orchestrator wires the voice conversation end to end: microphone
// capture feeds the realtime session, transcript deltas reconcile into
// conversation state, finalized user turns dispatch an agent query, and the
// agent's answer drives the chart executor while assistant audio plays back
// in arrival order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chartvoice/chartvoice/pkg/agent"
	"github.com/chartvoice/chartvoice/pkg/audio"
	"github.com/chartvoice/chartvoice/pkg/chart"
	"github.com/chartvoice/chartvoice/pkg/chart/parse"
	"github.com/chartvoice/chartvoice/pkg/core"
	"github.com/chartvoice/chartvoice/pkg/realtime"
	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
	"github.com/chartvoice/chartvoice/pkg/transcript"
)

// TranscriptStore persists finalized conversation turns. It is a
// non-critical side channel: failures are logged and never interrupt the
// conversation.
type TranscriptStore interface {
	SaveMessage(ctx context.Context, sessionID string, msg transcript.Message) error
}

// Config wires the orchestrator's collaborators. Manager, Parser and
// Executor are required; Capture, Playback, Agent and Transcripts are
// optional and their features degrade away when absent.
type Config struct {
	Manager     *realtime.Manager
	Parser      *parse.Parser
	Executor    *chart.Executor
	Agent       agent.Querier
	Playback    *audio.Queue
	Capture     *audio.Capture
	Transcripts TranscriptStore
	// SessionID tags persisted transcripts and agent queries. A random id
	// is generated when empty.
	SessionID string
	// HistoryTurns caps the conversation history sent with each agent
	// query. Defaults to 12.
	HistoryTurns int
	Logger       *slog.Logger
}

// Orchestrator coordinates one voice conversation.
type Orchestrator struct {
	cfg        Config
	reconciler *transcript.Reconciler
	listenerID string
	log        *slog.Logger

	mu      sync.Mutex
	history []agent.Turn

	wg sync.WaitGroup
}

// New validates cfg and builds the orchestrator. The realtime connection is
// not opened until Start.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Manager == nil {
		return nil, core.NewInvalidRequestError("connection manager is required")
	}
	if cfg.Parser == nil {
		return nil, core.NewInvalidRequestError("command parser is required")
	}
	if cfg.Executor == nil {
		return nil, core.NewInvalidRequestError("command executor is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 12
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:        cfg,
		listenerID: "orchestrator-" + cfg.SessionID,
		log:        logger.With("component", "orchestrator", "session_id", cfg.SessionID),
	}
	o.reconciler = transcript.NewReconciler(transcript.Callbacks{
		OnUpdate:    o.onTranscriptUpdate,
		OnUserFinal: o.onUserFinal,
	}, logger)
	return o, nil
}

// SessionID returns the conversation's id.
func (o *Orchestrator) SessionID() string {
	return o.cfg.SessionID
}

// Messages returns the reconciled conversation in display order.
func (o *Orchestrator) Messages() []transcript.Message {
	return o.reconciler.Messages()
}

// Start opens the realtime connection, registers the event listener and,
// when a capture source is configured, begins streaming microphone audio.
// It returns once the session is up; the conversation then runs on the
// manager's dispatch goroutine until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.cfg.Manager.AddListener(o.listenerID, realtime.Listener{
		OnTranscript:       o.reconciler.ApplyDelta,
		OnCorrection:       o.reconciler.ApplyCorrection,
		OnAudio:            o.onAudio,
		OnToolCall:         o.onToolCall,
		OnConnectionChange: o.onConnectionChange,
		OnError:            o.onSessionError,
	})

	if _, err := o.cfg.Manager.GetConnection(ctx); err != nil {
		o.cfg.Manager.RemoveListener(o.listenerID)
		return err
	}

	if o.cfg.Capture != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			err := o.cfg.Capture.Run(ctx, func(f audio.Frame) error {
				return o.cfg.Manager.SendAudioChunk(f.PCM)
			})
			if err != nil && ctx.Err() == nil {
				o.log.Error("microphone capture stopped", "error", err)
			}
		}()
	}
	return nil
}

// Stop closes the realtime connection and waits for in-flight work.
func (o *Orchestrator) Stop() {
	o.cfg.Manager.RemoveListener(o.listenerID)
	o.cfg.Manager.CloseConnection()
	o.wg.Wait()
	if o.cfg.Playback != nil {
		o.cfg.Playback.Wait()
	}
}

// SendText injects a typed user message, for driving the conversation
// without a microphone.
func (o *Orchestrator) SendText(text string) error {
	return o.cfg.Manager.SendText(text)
}

func (o *Orchestrator) onAudio(d protocol.AudioDelta) {
	if o.cfg.Playback == nil {
		return
	}
	o.cfg.Playback.Enqueue(audio.Frame{
		ItemID:     d.ItemID,
		Seq:        d.Seq,
		SampleRate: audio.PlaybackSampleRateHz,
		Channels:   1,
		PCM:        d.Data,
	})
}

// onToolCall executes chart commands the provider routes through a tool
// call instead of inline text tokens.
func (o *Orchestrator) onToolCall(req protocol.ToolCallRequest) {
	if req.Name != "chart_command" {
		o.log.Debug("ignoring tool call", "name", req.Name, "call_id", req.CallID)
		return
	}
	tokens := stringSlice(req.Input["commands"])
	if len(tokens) == 0 {
		o.log.Warn("chart_command tool call without commands", "call_id", req.CallID)
		return
	}
	o.execute(o.cfg.Parser.ParseStructured(tokens))
}

func (o *Orchestrator) onConnectionChange(connected bool) {
	o.log.Info("connection state changed", "connected", connected)
	if !connected && o.cfg.Playback != nil {
		o.cfg.Playback.Clear()
	}
}

func (o *Orchestrator) onSessionError(err error) {
	o.log.Error("session error", "error", err)
}

// onTranscriptUpdate persists finalized turns and tracks assistant history.
func (o *Orchestrator) onTranscriptUpdate(msg transcript.Message) {
	if !msg.Final {
		return
	}
	if msg.Role == protocol.RoleAssistant {
		o.appendHistory(agent.Turn{Role: agent.RoleAssistant, Content: msg.Text})
	}
	o.persist(msg)
}

// onUserFinal is the dispatch trigger: the finished user turn goes to the
// agent, and the agent's answer drives the chart.
func (o *Orchestrator) onUserFinal(msg transcript.Message) {
	o.appendHistory(agent.Turn{Role: agent.RoleUser, Content: msg.Text})
	if o.cfg.Agent == nil {
		return
	}

	history := o.historyBefore(msg.Text)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatch(msg.Text, history)
	}()
}

func (o *Orchestrator) dispatch(query string, history []agent.Turn) {
	resp, err := o.cfg.Agent.Query(context.Background(), agent.Request{
		Query:               query,
		ConversationHistory: history,
		SessionID:           o.cfg.SessionID,
	})
	if err != nil {
		o.log.Error("agent query failed", "error", err)
		return
	}

	commands := o.cfg.Parser.ParseStructured(resp.ChartCommands)
	commands = append(commands, o.cfg.Parser.Parse(context.Background(), resp.Text)...)
	o.execute(commands)
}

func (o *Orchestrator) execute(commands []chart.Command) {
	if len(commands) == 0 {
		return
	}
	results := o.cfg.Executor.ExecuteAll(commands)
	for i, res := range results {
		if !res.Success {
			o.log.Warn("chart command failed", "index", i, "type", commands[i].Type, "message", res.Message)
		}
	}
}

func (o *Orchestrator) appendHistory(turn agent.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, turn)
	if overflow := len(o.history) - o.cfg.HistoryTurns; overflow > 0 {
		o.history = append([]agent.Turn(nil), o.history[overflow:]...)
	}
}

// historyBefore snapshots the history excluding the turn currently being
// dispatched, which appendHistory already recorded.
func (o *Orchestrator) historyBefore(query string) []agent.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	turns := o.history
	if n := len(turns); n > 0 && turns[n-1].Role == agent.RoleUser && turns[n-1].Content == query {
		turns = turns[:n-1]
	}
	return append([]agent.Turn(nil), turns...)
}

// persist writes a finalized turn to the side channel. Persistence failures
// never interrupt the conversation.
func (o *Orchestrator) persist(msg transcript.Message) {
	if o.cfg.Transcripts == nil {
		return
	}
	if err := o.cfg.Transcripts.SaveMessage(context.Background(), o.cfg.SessionID, msg); err != nil {
		sideErr := core.NewSideChannelError(fmt.Sprintf("persist transcript %s", msg.ID), err)
		o.log.Warn("transcript persistence failed", "error", sideErr)
	}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
