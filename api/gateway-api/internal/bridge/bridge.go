// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_bridge pumps audio between one dialer socket and one
// agent stream. A bridge is created per media connection, walks the
// lifecycle below and is never reused:
//
//	IDLE → ACCEPTED → STARTING → RUNNING → CLOSING → TERMINAL
//
// The dialer read loop is the upstream pump; a supervised goroutine
// consuming the agent's event channel is the downstream pump. The two
// directions share nothing but the stream handles, so per-direction frame
// order is preserved end to end.
package internal_bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_registry "github.com/rapidaai/voice-gateway/api/gateway-api/internal/registry"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// Bridge lifecycle states.
const (
	StateIdle     = "IDLE"
	StateAccepted = "ACCEPTED"
	StateStarting = "STARTING"
	StateRunning  = "RUNNING"
	StateClosing  = "CLOSING"
	StateTerminal = "TERMINAL"
)

const (
	// cleanupTimeout bounds every blocking step of the CLOSING sequence. A
	// step still running past it is abandoned after logging.
	cleanupTimeout = 5 * time.Second

	// maxSendErrors is how many consecutive upstream send failures the
	// bridge tolerates before escalating to CLOSING. The transport below is
	// ordered, so there is nothing to retry.
	maxSendErrors = 5
)

// Parameter keys consumed by the bridge itself; everything else in
// start.customParameters becomes a dynamic variable for the agent.
const (
	paramAgentID       = "agent_id"
	paramAgentProvider = "agent_provider"
	paramCallID        = "call_id"
)

// Bridge connects one dialer media connection to one agent stream.
type Bridge struct {
	logger commons.Logger

	dialer       internal_type.Dialer
	agents       *internal_registry.Registry[internal_type.Agent]
	store        internal_callcontext.Store
	defaultAgent string

	conn      internal_type.DialerConn
	converter internal_type.AudioConverter
	parser    internal_type.MessageParser
	builder   internal_type.MessageBuilder

	// binaryFrames tells the downstream writer which websocket frame kind
	// the dialer expects; resolved once from the builder's capability.
	binaryFrames bool

	mu          sync.Mutex
	state       string
	callID      string
	streamID    string
	contextKey  string
	agentStream internal_type.AgentStream
	pumpCancel  context.CancelFunc
	pumpDone    chan struct{}

	// sendErrors is only touched by the read-loop goroutine.
	sendErrors int

	closeOnce sync.Once
}

// New wires a bridge for an accepted dialer connection. The converter is
// created here so each connection owns fresh resampler state.
func New(
	dialer internal_type.Dialer,
	agents *internal_registry.Registry[internal_type.Agent],
	store internal_callcontext.Store,
	defaultAgent string,
	conn internal_type.DialerConn,
	logger commons.Logger,
) *Bridge {
	builder := dialer.Builder()
	binary := false
	if bf, ok := builder.(internal_type.BinaryFrameBuilder); ok {
		binary = bf.BinaryFrames()
	}
	return &Bridge{
		logger:       logger,
		dialer:       dialer,
		agents:       agents,
		store:        store,
		defaultAgent: defaultAgent,
		conn:         conn,
		converter:    dialer.NewConverter(),
		parser:       dialer.Parser(),
		builder:      builder,
		binaryFrames: binary,
		state:        StateIdle,
	}
}

// State reports the current lifecycle state.
func (b *Bridge) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// =============================================================================
// Read loop (upstream pump)
// =============================================================================

// Run drives the bridge until the dialer disconnects, the agent ends, an
// error escalates, or ctx is cancelled. Cleanup always runs before Run
// returns; calling Run twice on one bridge is invalid.
func (b *Bridge) Run(ctx context.Context) error {
	b.setState(StateAccepted)
	b.logger.Infow("dialer connected", "dialer", b.dialer.Name())

	// Unblock the read loop on external cancellation by tearing the
	// connection down; shutdown is idempotent so the deferred call and the
	// pump-exit path stay harmless.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			b.logger.Infow("bridge cancelled", "callId", b.currentCallID())
			b.shutdown()
		case <-watcherDone:
		}
	}()
	defer b.shutdown()

	for {
		raw, err := b.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, internal_type.ErrStreamClosed) {
				b.logger.Infow("dialer disconnected", "callId", b.currentCallID())
				return nil
			}
			b.logger.Warnw("dialer read failed", "callId", b.currentCallID(), "error", err)
			return nil
		}

		event := b.parser.Parse(raw)
		switch event.Type {
		case internal_type.DialerEventStart:
			if err := b.handleStart(ctx, event); err != nil {
				b.logger.Errorw("call setup failed",
					"callId", event.CallID, "error", err)
				return err
			}
		case internal_type.DialerEventMedia:
			if err := b.handleMedia(ctx, event); err != nil {
				b.logger.Errorw("upstream pump failed",
					"callId", b.currentCallID(), "error", err)
				return err
			}
		case internal_type.DialerEventStop:
			b.logger.Infow("dialer stop", "callId", b.currentCallID())
			return nil
		case internal_type.DialerEventMark:
			b.logger.Debugw("dialer mark acknowledged",
				"callId", b.currentCallID(), "name", event.Name)
		case internal_type.DialerEventDtmf:
			b.logger.Infow("dialer dtmf",
				"callId", b.currentCallID(), "digit", event.Digit)
		default:
			b.logger.Debugw("ignoring unknown dialer frame", "bytes", len(raw))
		}
	}
}

// handleStart resolves the call context, connects and initializes the agent
// stream and starts the downstream pump. Any failure aborts the call before
// a single audio frame has moved.
func (b *Bridge) handleStart(ctx context.Context, event internal_type.DialerEvent) error {
	b.mu.Lock()
	if b.state != StateAccepted {
		state := b.state
		b.mu.Unlock()
		b.logger.Warnw("ignoring duplicate start frame",
			"callId", event.CallID, "state", state)
		return nil
	}
	b.state = StateStarting
	b.callID = event.CallID
	b.streamID = event.StreamID
	b.mu.Unlock()

	cc, err := b.resolveContext(ctx, event)
	if err != nil {
		return err
	}

	provider := cc.AgentProvider
	if provider == "" {
		provider = b.defaultAgent
	}
	agent, err := b.agents.Get(provider)
	if err != nil {
		return err
	}

	stream, err := agent.Connect(ctx, cc.AgentID, cc.DynamicVariables)
	if err != nil {
		return fmt.Errorf("agent handshake failed: %w", err)
	}
	b.mu.Lock()
	b.agentStream = stream
	b.mu.Unlock()

	if err := stream.Initialize(ctx); err != nil {
		return fmt.Errorf("agent initialization failed: %w", err)
	}

	b.startDownstreamPump(stream)
	b.setState(StateRunning)
	b.logger.Infow("bridge running",
		"callId", event.CallID,
		"streamId", event.StreamID,
		"agent", agent.Name(),
		"agentId", cc.AgentID)
	return nil
}

// handleMedia transcodes one upstream frame and hands it to the agent.
// Undecodable frames are dropped; send failures terminate only when the
// stream reports closed or keeps failing.
func (b *Bridge) handleMedia(ctx context.Context, event internal_type.DialerEvent) error {
	if b.State() != StateRunning {
		b.logger.Debugw("dropping media frame before start")
		return nil
	}

	pcm, err := b.converter.DialerToPCM(event.Payload)
	if err != nil {
		b.logger.Warnw("dropping undecodable media frame",
			"callId", b.currentCallID(), "error", err)
		return nil
	}
	if len(pcm) == 0 {
		return nil
	}

	if err := b.stream().SendAudio(ctx, pcm); err != nil {
		if errors.Is(err, internal_type.ErrStreamClosed) {
			return fmt.Errorf("agent stream closed: %w", err)
		}
		b.sendErrors++
		b.logger.Warnw("agent send failed",
			"callId", b.currentCallID(),
			"consecutive", b.sendErrors,
			"error", err)
		if b.sendErrors >= maxSendErrors {
			return fmt.Errorf("agent send failing repeatedly: %w", err)
		}
		return nil
	}
	b.sendErrors = 0
	return nil
}

// =============================================================================
// Context resolution
// =============================================================================

// resolveContext claims the stored call context or, on a store miss,
// reconstructs one from the start frame's custom parameters. The claim key
// prefers an explicit call_id parameter so dialers whose start frame names
// the stream rather than the call still find their setup-time context.
func (b *Bridge) resolveContext(ctx context.Context, event internal_type.DialerEvent) (*internal_callcontext.CallContext, error) {
	key := event.CallID
	if v := event.CustomParameters[paramCallID]; v != "" {
		key = v
	}
	b.mu.Lock()
	b.contextKey = key
	b.mu.Unlock()

	if key != "" {
		cc, err := b.store.Claim(ctx, key)
		if err == nil {
			return cc, nil
		}
		if !errors.Is(err, internal_callcontext.ErrNotFound) {
			return nil, err
		}
	}

	return contextFromParameters(event)
}

// contextFromParameters builds a call context from start.customParameters
// alone, the path taken by outbound calls whose directive echoed the
// parameters back. agent_id is mandatory; every non-reserved key becomes a
// dynamic variable with literal "true"/"false" coerced to booleans.
func contextFromParameters(event internal_type.DialerEvent) (*internal_callcontext.CallContext, error) {
	params := event.CustomParameters
	agentID := params[paramAgentID]
	if agentID == "" {
		return nil, errors.New("no stored call context and no agent_id parameter on start frame")
	}

	variables := make(map[string]interface{}, len(params))
	for key, value := range params {
		switch key {
		case paramAgentID, paramAgentProvider, paramCallID:
			continue
		}
		switch value {
		case "true":
			variables[key] = true
		case "false":
			variables[key] = false
		default:
			variables[key] = value
		}
	}

	return &internal_callcontext.CallContext{
		CallID:           event.CallID,
		AgentID:          agentID,
		AgentProvider:    params[paramAgentProvider],
		DynamicVariables: variables,
		Status:           internal_callcontext.StatusClaimed,
	}, nil
}

// =============================================================================
// Downstream pump
// =============================================================================

// startDownstreamPump launches the goroutine that drains the agent's event
// channel. Whenever the pump exits, on its own or by cancellation, the
// bridge tears down; a pump that is no longer running means the call is
// over.
func (b *Bridge) startDownstreamPump(stream internal_type.AgentStream) {
	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.mu.Lock()
	b.pumpCancel = cancel
	b.pumpDone = done
	b.mu.Unlock()

	g, gCtx := errgroup.WithContext(pumpCtx)
	g.Go(func() error {
		return b.downstreamPump(gCtx, stream)
	})
	go func() {
		if err := g.Wait(); err != nil {
			b.logger.Errorw("downstream pump failed",
				"callId", b.currentCallID(), "error", err)
		}
		close(done)
		b.shutdown()
	}()
}

func (b *Bridge) downstreamPump(ctx context.Context, stream internal_type.AgentStream) error {
	events := stream.Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				b.logger.Infow("agent stream ended", "callId", b.currentCallID())
				return nil
			}
			if err := b.handleAgentEvent(event); err != nil {
				return err
			}
		}
	}
}

// handleAgentEvent forwards one agent emission toward the dialer. Audio is
// the only event that produces a wire frame; text and transcriptions are
// observability, interruptions map to the dialer's clear capability, errors
// end the call, pings never reach this level.
func (b *Bridge) handleAgentEvent(event internal_type.AgentEvent) error {
	switch event.Type {
	case internal_type.AgentEventAudio:
		payload, err := b.converter.PCMToDialer(event.Audio)
		if err != nil {
			b.logger.Warnw("dropping unencodable agent audio",
				"callId", b.currentCallID(), "error", err)
			return nil
		}
		if len(payload) == 0 {
			return nil
		}
		frame, err := b.builder.BuildAudio(b.currentStreamID(), payload)
		if err != nil {
			b.logger.Warnw("dropping unbuildable audio frame",
				"callId", b.currentCallID(), "error", err)
			return nil
		}
		if err := b.writeToDialer(frame); err != nil {
			return fmt.Errorf("dialer write failed: %w", err)
		}
		return nil

	case internal_type.AgentEventText:
		b.logger.Infow("agent response",
			"callId", b.currentCallID(), "text", event.Text)
		return nil

	case internal_type.AgentEventTranscription:
		b.logger.Infow("transcription",
			"callId", b.currentCallID(),
			"source", event.Source,
			"text", event.Text)
		return nil

	case internal_type.AgentEventInterruption:
		b.handleInterruption()
		return nil

	case internal_type.AgentEventError:
		msg := event.Err
		if msg == "" {
			msg = "unspecified agent error"
		}
		return fmt.Errorf("agent error: %s", msg)

	default:
		// pong and metadata carry nothing for the dialer
		return nil
	}
}

// handleInterruption asks the dialer to drop buffered playback. Dialers
// expose this either as a wire-level clear frame or as a connection flush;
// without either the interruption is only logged and stale audio plays out.
func (b *Bridge) handleInterruption() {
	b.logger.Infow("agent interruption", "callId", b.currentCallID())

	if cb, ok := b.builder.(internal_type.ClearBuilder); ok {
		frame, err := cb.BuildClear(b.currentStreamID())
		if err != nil {
			b.logger.Warnw("clear frame build failed",
				"callId", b.currentCallID(), "error", err)
			return
		}
		if err := b.writeToDialer(frame); err != nil {
			b.logger.Warnw("clear frame write failed",
				"callId", b.currentCallID(), "error", err)
		}
		return
	}
	if flusher, ok := b.conn.(internal_type.Flusher); ok {
		flusher.Flush()
	}
}

// writeToDialer is the single downstream writer for the dialer socket.
func (b *Bridge) writeToDialer(frame []byte) error {
	if b.binaryFrames {
		return b.conn.WriteBinary(frame)
	}
	return b.conn.WriteText(frame)
}

// =============================================================================
// CLOSING sequence
// =============================================================================

// shutdown runs the CLOSING sequence exactly once: stop the downstream
// pump, close the agent stream, close the dialer socket, delete the call
// context. Each step is recovered and logged individually so one failure
// never skips the rest.
func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		b.setState(StateClosing)

		b.mu.Lock()
		callID := b.callID
		contextKey := b.contextKey
		stream := b.agentStream
		cancel := b.pumpCancel
		done := b.pumpDone
		b.mu.Unlock()

		b.logger.Infow("bridge closing", "callId", callID)

		b.step("stop downstream pump", func() error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
				return nil
			case <-time.After(cleanupTimeout):
				return errors.New("pump did not stop within budget, abandoning")
			}
		})

		b.step("close agent stream", func() error {
			if stream == nil {
				return nil
			}
			return stream.Close()
		})

		b.step("close dialer connection", func() error {
			return b.conn.Close()
		})

		b.step("delete call context", func() error {
			if contextKey == "" {
				return nil
			}
			ctx, cancelDelete := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancelDelete()
			return b.store.Delete(ctx, contextKey)
		})

		b.setState(StateTerminal)
		b.logger.Infow("bridge terminated", "callId", callID)
	})
}

// step executes one cleanup action, containing panics and demoting errors
// to log lines so the CLOSING sequence always runs to the end.
func (b *Bridge) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("cleanup step panicked", "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		b.logger.Warnw("cleanup step failed", "step", name, "error", err)
	}
}

// =============================================================================
// Guarded accessors
// =============================================================================

func (b *Bridge) setState(state string) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Bridge) currentCallID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callID
}

func (b *Bridge) currentStreamID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streamID
}

func (b *Bridge) stream() internal_type.AgentStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agentStream
}
