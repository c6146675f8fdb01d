// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package gateway_calls_api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_twilio_dialer "github.com/rapidaai/voice-gateway/api/gateway-api/internal/dialer/twilio"
	internal_registry "github.com/rapidaai/voice-gateway/api/gateway-api/internal/registry"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-calls"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

func newTestConfig() *config.GatewayConfig {
	return &config.GatewayConfig{
		Name:          "voice-gateway",
		Version:       "1.0.0",
		Environment:   "development",
		Host:          "127.0.0.1",
		Port:          8000,
		LogLevel:      "debug",
		DefaultDialer: "twilio",
		DefaultAgent:  "fake-agent",
		Demo:          config.DemoConfig{AgentID: "agent_demo"},
	}
}

// ============================================================================
// Fakes
// ============================================================================

type passthroughConverter struct{}

func (passthroughConverter) DialerToPCM(payload []byte) ([]byte, error) { return payload, nil }

func (passthroughConverter) PCMToDialer(pcm []byte) ([]byte, error) { return pcm, nil }

type stubParser struct{}

func (stubParser) Parse(raw []byte) internal_type.DialerEvent {
	return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
}

// stubBuilder answers connect requests with a JSON document so tests can
// read back exactly which parameters rode the directive.
type stubBuilder struct{}

func (stubBuilder) BuildAudio(streamID string, payload []byte) ([]byte, error) {
	return payload, nil
}

func (stubBuilder) BuildConnect(wsURL string, params map[string]string) (internal_type.ConnectDirective, error) {
	body, err := json.Marshal(map[string]interface{}{"url": wsURL, "params": params})
	if err != nil {
		return internal_type.ConnectDirective{}, err
	}
	return internal_type.ConnectDirective{ContentType: "application/json", Body: body}, nil
}

// stubDialer is the minimal registrable dialer. It has no inbound parser
// and no unavailable builder, which is exactly what the fallthrough paths
// need exercised.
type stubDialer struct {
	name        string
	validateErr error
	outboundErr error

	mu       sync.Mutex
	requests []internal_type.OutboundRequest
	result   internal_type.OutboundResult
}

func (d *stubDialer) Name() string {
	if d.name == "" {
		return "stub"
	}
	return d.name
}

func (d *stubDialer) ValidateConfig() error { return d.validateErr }

func (d *stubDialer) NewConverter() internal_type.AudioConverter { return passthroughConverter{} }

func (d *stubDialer) Parser() internal_type.MessageParser { return stubParser{} }

func (d *stubDialer) Builder() internal_type.MessageBuilder { return stubBuilder{} }

func (d *stubDialer) InitiateOutbound(ctx context.Context, req internal_type.OutboundRequest) (internal_type.OutboundResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.outboundErr != nil {
		return internal_type.OutboundResult{}, d.outboundErr
	}
	res := d.result
	if res.To == "" {
		res.To = req.To
	}
	return res, nil
}

func (d *stubDialer) lastRequest(t *testing.T) internal_type.OutboundRequest {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.requests)
	return d.requests[len(d.requests)-1]
}

// fakeAgentStream records what the bridge pushes and lets the test emit
// agent events back.
type fakeAgentStream struct {
	mu     sync.Mutex
	sent   [][]byte
	inits  int
	closes int

	events chan internal_type.AgentEvent
	once   sync.Once
}

func newFakeAgentStream() *fakeAgentStream {
	return &fakeAgentStream{events: make(chan internal_type.AgentEvent, 8)}
}

func (s *fakeAgentStream) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return nil
}

func (s *fakeAgentStream) SendAudio(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.sent = append(s.sent, buf)
	return nil
}

func (s *fakeAgentStream) Receive() <-chan internal_type.AgentEvent { return s.events }

func (s *fakeAgentStream) Close() error {
	s.once.Do(func() { close(s.events) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeAgentStream) emit(ev internal_type.AgentEvent) { s.events <- ev }

func (s *fakeAgentStream) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeAgentStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeAgent struct {
	mu       sync.Mutex
	stream   *fakeAgentStream
	agentIDs []string
}

func (a *fakeAgent) Name() string          { return "fake-agent" }
func (a *fakeAgent) ValidateConfig() error { return nil }

func (a *fakeAgent) Connect(ctx context.Context, agentID string, variables map[string]interface{}) (internal_type.AgentStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agentIDs = append(a.agentIDs, agentID)
	return a.stream, nil
}

func (a *fakeAgent) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.agentIDs)
}

// ============================================================================
// Fixture
// ============================================================================

type callsFixture struct {
	cfg     *config.GatewayConfig
	capi    *CallsApi
	engine  *gin.Engine
	store   internal_callcontext.Store
	dialers *internal_registry.Registry[internal_type.Dialer]
	agents  *internal_registry.Registry[internal_type.Agent]
}

func newCallsFixture(t *testing.T, dialers ...internal_type.Dialer) *callsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := newTestLogger(t)
	cfg := newTestConfig()

	store := internal_callcontext.NewStore(logger)
	dreg := internal_registry.New[internal_type.Dialer](logger, "dialer")
	for _, d := range dialers {
		dreg.Register(d.Name(), d)
	}
	areg := internal_registry.New[internal_type.Agent](logger, "agent")

	capi := New(cfg, logger, store, dreg, areg)

	engine := gin.New()
	engine.GET("/", capi.Root)
	engine.GET("/health", capi.Health)
	engine.POST("/:dialer/outbound-call", capi.OutboundCall)
	engine.POST("/:dialer/incoming-call", capi.IncomingCall)
	engine.GET("/:dialer/incoming-call", capi.IncomingCall)
	engine.GET("/:dialer/media-stream", capi.MediaStream)

	return &callsFixture{
		cfg:     cfg,
		capi:    capi,
		engine:  engine,
		store:   store,
		dialers: dreg,
		agents:  areg,
	}
}

func (f *callsFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// ============================================================================
// Service endpoints
// ============================================================================

func TestRootReportsService(t *testing.T) {
	f := newCallsFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "voice-gateway", body["service"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, "running", body["status"])
}

func TestHealthReportsHealthy(t *testing.T) {
	f := newCallsFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "healthy", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

// ============================================================================
// Outbound calls
// ============================================================================

func TestOutboundCallUnknownDialer(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{})

	rec := f.do(jsonRequest(t, http.MethodPost, "/nope/outbound-call", gin.H{
		"agent_id": "ag-1",
		"metadata": gin.H{"to_number": "+15550100"},
	}))

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeJSON(t, rec)
	assert.Contains(t, body["error"], "stub")
	assert.Contains(t, body["error"], "available")
}

func TestOutboundCallRequiresAgentID(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{})

	rec := f.do(jsonRequest(t, http.MethodPost, "/stub/outbound-call", gin.H{
		"metadata": gin.H{"to_number": "+15550100"},
	}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "invalid request body")
}

func TestOutboundCallRequiresToNumber(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{})

	rec := f.do(jsonRequest(t, http.MethodPost, "/stub/outbound-call", gin.H{
		"agent_id": "ag-1",
	}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "to_number is required")
}

func TestOutboundCallUnconfiguredDialer(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{
		validateErr: fmt.Errorf("account sid is not configured"),
	})

	rec := f.do(jsonRequest(t, http.MethodPost, "/stub/outbound-call", gin.H{
		"agent_id": "ag-1",
		"metadata": gin.H{"to_number": "+15550100"},
	}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "credentials not configured")
}

func TestOutboundCallPlacesCall(t *testing.T) {
	dialer := &stubDialer{result: internal_type.OutboundResult{
		Success: true,
		CallID:  "CA100",
		Status:  "queued",
		Message: "outbound call initiated successfully",
	}}
	f := newCallsFixture(t, dialer)

	rec := f.do(jsonRequest(t, http.MethodPost, "/stub/outbound-call", gin.H{
		"agent_id":   "ag-7",
		"session_id": "sess-1",
		"metadata": gin.H{
			"to_number": "+15550100",
			"dynamic_variables": gin.H{
				"name":     "Ada",
				"eligible": true,
			},
		},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "CA100", body["call_id"])
	assert.Equal(t, "+15550100", body["to"])
	assert.Equal(t, "queued", body["status"])

	req := dialer.lastRequest(t)
	assert.Equal(t, "+15550100", req.To)
	assert.Equal(t, "ag-7", req.AgentID)
	assert.Equal(t, map[string]string{
		"agent_id":  "ag-7",
		"to_number": "+15550100",
		"name":      "Ada",
		"eligible":  "true",
	}, req.CustomParams)
	assert.Equal(t, "ws://127.0.0.1:8000/stub/media-stream", req.WsURL)
	assert.Equal(t, "http://127.0.0.1:8000/stub/incoming-call", req.AnswerURL)
}

func TestOutboundCallProviderFailure(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{
		outboundErr: fmt.Errorf("provider rejected the call"),
	})

	rec := f.do(jsonRequest(t, http.MethodPost, "/stub/outbound-call", gin.H{
		"agent_id": "ag-1",
		"metadata": gin.H{"to_number": "+15550100"},
	}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "provider rejected")
}

// ============================================================================
// Incoming calls
// ============================================================================

func newTwilioDialer(t *testing.T) internal_type.Dialer {
	t.Helper()
	logger := newTestLogger(t)
	return internal_twilio_dialer.NewTwilio(config.TwilioConfig{}, logger)
}

func TestIncomingCallUnknownDialer(t *testing.T) {
	f := newCallsFixture(t)

	rec := f.do(formRequest("/nope/incoming-call", url.Values{}))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIncomingCallStoresContextAndAnswersDirective(t *testing.T) {
	f := newCallsFixture(t, newTwilioDialer(t))

	rec := f.do(formRequest("/twilio/incoming-call", url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15550100"},
		"To":      {"+15550199"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	body := rec.Body.String()
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, `url="ws://127.0.0.1:8000/twilio/media-stream"`)
	// Only the call id was offered and the start frame already carries it.
	assert.NotContains(t, body, "<Parameter")

	cc, err := f.store.Get(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "agent_demo", cc.AgentID)
	assert.Equal(t, "twilio", cc.Provider)
	assert.Equal(t, internal_callcontext.DirectionInbound, cc.Direction)
	assert.Equal(t, "+15550100", cc.CallerNumber)
	assert.Equal(t, "+15550199", cc.CalleeNumber)
	assert.Equal(t, internal_callcontext.StatusPending, cc.Status)
	assert.Equal(t, "Test Customer", cc.DynamicVariables["name"])
	assert.Equal(t, true, cc.DynamicVariables["emi_eligible"])
}

func TestIncomingCallEchoesInlineContext(t *testing.T) {
	f := newCallsFixture(t, newTwilioDialer(t))

	rec := f.do(formRequest("/twilio/incoming-call?agent_id=ag-9&campaign=summer", url.Values{
		"CallSid": {"CA2"},
		"From":    {"+15550100"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="agent_id" value="ag-9"`)
	assert.Contains(t, body, `name="campaign" value="summer"`)

	// Inline context rides the directive; nothing is parked in the store.
	_, err := f.store.Get(context.Background(), "CA2")
	assert.ErrorIs(t, err, internal_callcontext.ErrNotFound)
}

func TestIncomingCallAnswersUnavailableInBand(t *testing.T) {
	f := newCallsFixture(t, newTwilioDialer(t))
	f.capi.WithResolver(NewDemoResolver(config.DemoConfig{}))

	rec := f.do(formRequest("/twilio/incoming-call", url.Values{
		"CallSid": {"CA3"},
	}))

	// Telephony webhooks must answer in-band; the provider voices this.
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<Say>Service temporarily unavailable</Say>")
	assert.Contains(t, body, "<Hangup>")
}

func TestIncomingCallUnavailableWithoutBuilderIs500(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{})
	f.capi.WithResolver(NewDemoResolver(config.DemoConfig{}))

	rec := f.do(formRequest("/stub/incoming-call", url.Values{}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "unavailable")
}

func TestIncomingCallGeneratesCallIDWhenProviderSendsNone(t *testing.T) {
	f := newCallsFixture(t, &stubDialer{})

	rec := f.do(formRequest("/stub/incoming-call", url.Values{
		"caller": {"someone"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var directive struct {
		URL    string            `json:"url"`
		Params map[string]string `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &directive))
	callID := directive.Params["call_id"]
	_, err := uuid.Parse(callID)
	require.NoError(t, err, "generated call id should be a uuid")

	cc, err := f.store.Get(context.Background(), callID)
	require.NoError(t, err)
	assert.Equal(t, "agent_demo", cc.AgentID)
	assert.Equal(t, "stub", cc.Provider)
}

// ============================================================================
// Media stream
// ============================================================================

func TestMediaStreamUnknownDialer(t *testing.T) {
	f := newCallsFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/nope/media-stream", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

// twilioFrame builds Media Streams wire JSON without depending on the
// dialer package's unexported message types.
func twilioFrame(t *testing.T, frame map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return raw
}

func TestMediaStreamBridgesStoredCall(t *testing.T) {
	stream := newFakeAgentStream()
	agent := &fakeAgent{stream: stream}

	f := newCallsFixture(t, newTwilioDialer(t))
	f.agents.Register(agent.Name(), agent)

	_, err := f.store.Save(context.Background(), &internal_callcontext.CallContext{
		CallID:  "CA1",
		AgentID: "ag-42",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/twilio/media-stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	err = conn.WriteMessage(websocket.TextMessage, twilioFrame(t, map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{
			"callSid":          "CA1",
			"streamSid":        "MZ7",
			"tracks":           []string{"inbound"},
			"customParameters": map[string]string{},
		},
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return agent.connectCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "bridge should connect the stored agent")

	// 160 bytes of mu-law at 8kHz is one 20ms frame; upsampled to 16kHz it
	// becomes 320 samples of canonical PCM.
	mulaw := bytes.Repeat([]byte{0xff}, 160)
	err = conn.WriteMessage(websocket.TextMessage, twilioFrame(t, map[string]interface{}{
		"event":     "media",
		"streamSid": "MZ7",
		"media": map[string]interface{}{
			"payload": base64.StdEncoding.EncodeToString(mulaw),
		},
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(stream.sentFrames()) == 1
	}, 2*time.Second, 5*time.Millisecond, "media frame should reach the agent")
	require.Len(t, stream.sentFrames()[0], 320*2)

	// Downstream: agent audio comes back as a media frame on the same stream.
	stream.emit(internal_type.AgentEvent{
		Type:  internal_type.AgentEventAudio,
		Audio: make([]byte, 320),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	var mediaOut struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	require.NoError(t, json.Unmarshal(reply, &mediaOut))
	assert.Equal(t, "media", mediaOut.Event)
	assert.Equal(t, "MZ7", mediaOut.StreamSid)
	assert.NotEmpty(t, mediaOut.Media.Payload)

	err = conn.WriteMessage(websocket.TextMessage, twilioFrame(t, map[string]interface{}{
		"event":     "stop",
		"streamSid": "MZ7",
		"stop":      map[string]interface{}{"callSid": "CA1"},
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "CA1")
		return err != nil
	}, 2*time.Second, 5*time.Millisecond, "stop should release the call context")
	require.Eventually(t, func() bool {
		return stream.closeCount() >= 1
	}, 2*time.Second, 5*time.Millisecond, "stop should close the agent stream")

	require.Equal(t, []string{"ag-42"}, agent.agentIDs)
}

// ============================================================================
// Directive URLs
// ============================================================================

func TestBuildWebsocketURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		want string
	}{
		{
			name: "development binds localhost for wildcard host",
			cfg:  config.GatewayConfig{Environment: "development", Host: "0.0.0.0", Port: 8000},
			want: "ws://localhost:8000/twilio/media-stream",
		},
		{
			name: "development keeps explicit host and port",
			cfg:  config.GatewayConfig{Environment: "development", Host: "127.0.0.1", Port: 9000},
			want: "ws://127.0.0.1:9000/twilio/media-stream",
		},
		{
			name: "production uses public host verbatim",
			cfg:  config.GatewayConfig{Environment: "production", Host: "0.0.0.0", Port: 8000, PublicHost: "gw.example.com"},
			want: "wss://gw.example.com/twilio/media-stream",
		},
		{
			name: "production elides default tls port",
			cfg:  config.GatewayConfig{Environment: "production", Host: "voice.internal", Port: 443},
			want: "wss://voice.internal/twilio/media-stream",
		},
		{
			name: "production keeps non-default port",
			cfg:  config.GatewayConfig{Environment: "production", Host: "voice.internal", Port: 8443},
			want: "wss://voice.internal:8443/twilio/media-stream",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			capi := &CallsApi{cfg: &tc.cfg}
			assert.Equal(t, tc.want, capi.buildWebsocketURL("twilio"))
		})
	}
}

func TestBuildAnswerURL(t *testing.T) {
	capi := &CallsApi{cfg: &config.GatewayConfig{
		Environment: "production",
		PublicHost:  "gw.example.com",
	}}
	assert.Equal(t, "https://gw.example.com/vonage/incoming-call", capi.buildAnswerURL("vonage"))
}
