// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	internal_audio "github.com/rapidaai/voice-gateway/api/gateway-api/internal/audio"
	media_internal "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media/internal"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// handshakeTimeout bounds how long the joining side waits for the room's
// offer before giving up.
const handshakeTimeout = 15 * time.Second

// ============================================================================
// Session - one side of a live room
// ============================================================================

// Session is one participant in a room: a pion peer connection publishing a
// local opus track and subscribing to the remote one, negotiated over a
// SignalTransport the session takes ownership of.
//
// Audio in both directions is mono 48kHz PCM at this layer:
//
//	PushAudio -> streamer outbound -> paced writer -> opus encode -> track
//	remote track -> opus decode -> streamer inbound -> ReadAudio
//
// The host side creates the peer connection eagerly and sends the offer; the
// joining side authenticates with its room token and answers.
type Session struct {
	mu sync.Mutex

	logger    commons.Logger
	config    *media_internal.Config
	transport SignalTransport
	streamer  *Streamer

	room     string
	identity string

	pc         *pionwebrtc.PeerConnection
	localTrack *pionwebrtc.TrackLocalStaticSample

	// encoder belongs to the paced track writer; decoders are per remote
	// track inside readRemoteTrack.
	encoder *OpusCodec

	// Trickled candidates that arrived before the remote description; pion
	// rejects AddICECandidate until the remote side is set.
	remoteSet         bool
	pendingCandidates []CandidateInit

	// frames is fed by the single transport reader; the handshake and the
	// signaling loop both consume from it.
	frames chan *SignalFrame

	readerWg  sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newSession(transport SignalTransport, logger commons.Logger, room, identity string) (*Session, error) {
	encoder, err := NewOpusCodec()
	if err != nil {
		return nil, err
	}
	return &Session{
		logger:    logger,
		config:    media_internal.DefaultConfig(),
		transport: transport,
		streamer:  NewStreamer(logger),
		room:      room,
		identity:  identity,
		encoder:   encoder,
		frames:    make(chan *SignalFrame, 16),
	}, nil
}

// HostSession answers a verified join: it owns the room side of the peer
// connection, sends the offer, and negotiates against the joiner's answer.
// Media may start flowing before the returned session is fully connected.
func HostSession(ctx context.Context, transport SignalTransport, logger commons.Logger, room, identity string) (*Session, error) {
	s, err := newSession(transport, logger, room, identity)
	if err != nil {
		transport.Close()
		return nil, err
	}
	go s.runFrameReader()

	if err := s.setupPeer(); err != nil {
		s.Close()
		return nil, err
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	if err := s.transport.WriteFrame(&SignalFrame{
		Type:     SignalOffer,
		SDP:      offer.SDP,
		Room:     room,
		Identity: identity,
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("send offer: %w", err)
	}

	go s.signalLoop()
	go s.runTrackWriter()
	return s, nil
}

// JoinSession enters a room as the remote participant: it presents the room
// token, waits for the host's offer, and answers it.
func JoinSession(ctx context.Context, transport SignalTransport, token string, logger commons.Logger) (*Session, error) {
	s, err := newSession(transport, logger, "", "")
	if err != nil {
		transport.Close()
		return nil, err
	}
	go s.runFrameReader()

	if err := s.transport.WriteFrame(&SignalFrame{Type: SignalJoin, Token: token}); err != nil {
		s.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	// Candidates may trickle in ahead of the offer; keep them pending.
	var offer *SignalFrame
	for offer == nil {
		frame, err := s.nextFrame(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("wait for offer: %w", err)
		}
		switch frame.Type {
		case SignalOffer:
			offer = frame
		case SignalCandidate:
			s.addRemoteCandidate(frame.Candidate)
		case SignalError:
			s.Close()
			return nil, fmt.Errorf("room rejected join: %s", frame.Reason)
		case SignalBye:
			s.Close()
			return nil, fmt.Errorf("room closed before offer")
		default:
			s.logger.Debugw("Ignoring signaling frame before offer", "type", frame.Type)
		}
	}
	s.room = offer.Room

	if err := s.setupPeer(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setRemoteDescription(pionwebrtc.SDPTypeOffer, offer.SDP); err != nil {
		s.Close()
		return nil, err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	if err := s.transport.WriteFrame(&SignalFrame{Type: SignalAnswer, SDP: answer.SDP}); err != nil {
		s.Close()
		return nil, fmt.Errorf("send answer: %w", err)
	}

	go s.signalLoop()
	go s.runTrackWriter()
	return s, nil
}

// ============================================================================
// Peer connection
// ============================================================================

func (s *Session) setupPeer() error {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   media_internal.OpusSampleRate,
			Channels:    media_internal.OpusChannels,
			SDPFmtpLine: media_internal.OpusSDPFmtpLine,
		},
		PayloadType: media_internal.OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("register opus codec: %w", err)
	}

	// Default interceptors include NACK for audio packet recovery.
	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, len(s.config.ICEServers))
	for i, srv := range s.config.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}
	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if s.config.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	pc.OnICECandidate(func(c *pionwebrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		frame := &SignalFrame{
			Type: SignalCandidate,
			Candidate: &CandidateInit{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			},
		}
		if err := s.transport.WriteFrame(frame); err != nil {
			s.logger.Debugw("Failed to send ICE candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		s.logger.Infow("Room connection state changed", "state", state.String(), "room", s.room)
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			if err := s.transport.WriteFrame(&SignalFrame{Type: SignalReady, Room: s.room}); err != nil {
				s.logger.Debugw("Failed to send ready", "error", err)
			}
		case pionwebrtc.PeerConnectionStateFailed, pionwebrtc.PeerConnectionStateClosed:
			// Close from a fresh goroutine; pion invokes this callback from
			// its own internals and Close waits on track readers.
			go s.Close()
		case pionwebrtc.PeerConnectionStateDisconnected:
			// Transient; ICE may still recover.
			s.logger.Warnw("Room peer disconnected, waiting for ICE recovery", "room", s.room)
		}
	})

	pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if track.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Infow("Remote audio track received", "codec", track.Codec().MimeType, "room", s.room)
		s.readerWg.Add(1)
		go s.readRemoteTrack(track)
	})

	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeOpus,
			ClockRate: media_internal.OpusSampleRate,
			Channels:  media_internal.OpusChannels,
		},
		"audio",
		"voice-gateway",
	)
	if err != nil {
		return fmt.Errorf("create local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	s.mu.Lock()
	s.localTrack = track
	s.mu.Unlock()
	return nil
}

// setRemoteDescription installs the remote SDP and replays candidates that
// trickled in before it.
func (s *Session) setRemoteDescription(sdpType pionwebrtc.SDPType, sdp string) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("peer connection is not ready")
	}
	if err := pc.SetRemoteDescription(pionwebrtc.SessionDescription{Type: sdpType, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	s.mu.Lock()
	s.remoteSet = true
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	s.mu.Unlock()

	for _, cand := range pending {
		s.applyCandidate(pc, cand)
	}
	return nil
}

func (s *Session) addRemoteCandidate(cand *CandidateInit) {
	if cand == nil {
		return
	}
	s.mu.Lock()
	if !s.remoteSet {
		s.pendingCandidates = append(s.pendingCandidates, *cand)
		s.mu.Unlock()
		return
	}
	pc := s.pc
	s.mu.Unlock()
	s.applyCandidate(pc, *cand)
}

func (s *Session) applyCandidate(pc *pionwebrtc.PeerConnection, cand CandidateInit) {
	if err := pc.AddICECandidate(pionwebrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}); err != nil {
		s.logger.Warnw("Failed to add ICE candidate", "error", err, "room", s.room)
	}
}

// ============================================================================
// Signaling
// ============================================================================

// runFrameReader is the only reader of the transport. It ends, closing the
// frame channel, when the transport errors or the session disconnects.
func (s *Session) runFrameReader() {
	defer close(s.frames)
	for {
		frame, err := s.transport.ReadFrame()
		if err != nil {
			return
		}
		select {
		case s.frames <- frame:
		case <-s.streamer.Context().Done():
			return
		}
	}
}

// nextFrame pops one signaling frame during the handshake phase.
func (s *Session) nextFrame(ctx context.Context) (*SignalFrame, error) {
	timer := time.NewTimer(handshakeTimeout)
	defer timer.Stop()
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("signaling timed out after %s", handshakeTimeout)
	}
}

// signalLoop consumes post-handshake frames until the transport or the
// session ends.
func (s *Session) signalLoop() {
	defer s.Close()
	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return
			}
			if !s.handleSignal(frame) {
				return
			}
		case <-s.streamer.Context().Done():
			return
		}
	}
}

// handleSignal reports false once the session should stop.
func (s *Session) handleSignal(frame *SignalFrame) bool {
	switch frame.Type {
	case SignalAnswer:
		s.mu.Lock()
		pc := s.pc
		s.mu.Unlock()
		if pc == nil || pc.SignalingState() != pionwebrtc.SignalingStateHaveLocalOffer {
			s.logger.Warnw("Unexpected SDP answer, ignoring", "room", s.room)
			return true
		}
		if err := s.setRemoteDescription(pionwebrtc.SDPTypeAnswer, frame.SDP); err != nil {
			s.logger.Errorw("Failed to apply SDP answer", "error", err, "room", s.room)
			return false
		}
	case SignalCandidate:
		s.addRemoteCandidate(frame.Candidate)
	case SignalBye:
		s.logger.Infow("Peer left the room", "room", s.room)
		return false
	case SignalError:
		s.logger.Warnw("Peer reported signaling error", "reason", frame.Reason, "room", s.room)
		return false
	case SignalReady:
		s.logger.Debugw("Peer reported ready", "room", s.room)
	default:
		s.logger.Debugw("Ignoring signaling frame", "type", frame.Type)
	}
	return true
}

// ============================================================================
// Media
// ============================================================================

// runTrackWriter paces queued outbound frames onto the local track at 20ms
// real-time intervals so audio bursts play at speech rate.
func (s *Session) runTrackWriter() {
	ticker := time.NewTicker(time.Duration(media_internal.OutboundPaceInterval) * time.Millisecond)
	defer ticker.Stop()

	// pendingAudio holds raw 20ms PCM frames waiting for the next tick.
	var pendingAudio [][]byte

	for {
		select {
		case <-s.streamer.Context().Done():
			return

		case <-s.streamer.FlushSignal():
			// Interruption: discard all queued audio immediately.
			pendingAudio = pendingAudio[:0]

		case <-ticker.C:
			if len(pendingAudio) == 0 {
				continue
			}
			encoded, err := s.encoder.Encode(pendingAudio[0])
			if err != nil {
				s.logger.Debugw("Opus encode failed", "error", err)
			} else {
				s.writeAudioFrame(encoded)
			}
			pendingAudio = pendingAudio[1:]

		case frame := <-s.streamer.OutboundFrames():
			pendingAudio = append(pendingAudio, frame)
		}
	}
}

// writeAudioFrame writes one encoded opus frame to the local track.
func (s *Session) writeAudioFrame(data []byte) {
	s.mu.Lock()
	track := s.localTrack
	s.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.WriteSample(media.Sample{
		Data:     data,
		Duration: media_internal.OpusFrameDuration * time.Millisecond,
	}); err != nil {
		s.logger.Debugw("Failed to write sample to track", "error", err)
	}
}

// readRemoteTrack decodes the remote opus track into 48kHz PCM and feeds the
// streamer's inbound side.
func (s *Session) readRemoteTrack(track *pionwebrtc.TrackRemote) {
	defer s.readerWg.Done()

	if track.Codec().MimeType != pionwebrtc.MimeTypeOpus {
		s.logger.Errorw("Unsupported codec, only opus is supported", "codec", track.Codec().MimeType)
		return
	}
	decoder, err := NewOpusCodec()
	if err != nil {
		s.logger.Errorw("Failed to create opus decoder", "error", err)
		return
	}

	buf := make([]byte, media_internal.RTPBufferSize)
	consecutiveErrors := 0

	for {
		select {
		case <-s.streamer.Context().Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= media_internal.MaxConsecutiveErrors {
				s.logger.Errorw("Too many consecutive track read errors, stopping reader", "lastError", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("Failed to unmarshal RTP packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		samples, err := decoder.DecodeFloat32(pkt.Payload)
		if err != nil {
			s.logger.Debugw("Opus decode failed", "error", err, "payloadSize", len(pkt.Payload))
			continue
		}
		s.streamer.PushInbound(internal_audio.Float32ToPCM16(samples))
	}
}

// ============================================================================
// Session API
// ============================================================================

// PushAudio queues mono 48kHz PCM for the local track.
func (s *Session) PushAudio(pcm []byte) error {
	if s.streamer.Disconnected() {
		return io.EOF
	}
	s.streamer.PushOutbound(pcm)
	return nil
}

// ReadAudio returns the next chunk of remote audio (mono 48kHz PCM) and
// io.EOF once the session ends and the queue drains.
func (s *Session) ReadAudio() ([]byte, error) {
	return s.streamer.ReadInbound()
}

// Flush drops all audio queued toward the remote peer.
func (s *Session) Flush() {
	s.streamer.ClearOutbound()
}

// Context ends when the session disconnects.
func (s *Session) Context() context.Context {
	return s.streamer.Context()
}

// Room returns the room name once known.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Close tears the session down: bye to the peer, peer connection, transport.
// Idempotent and safe from the signaling loop itself.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.streamer.Disconnect()

		// Best effort; the peer may already be gone.
		if err := s.transport.WriteFrame(&SignalFrame{Type: SignalBye, Room: s.room}); err != nil {
			s.logger.Debugw("Failed to send bye", "error", err)
		}

		s.mu.Lock()
		pc := s.pc
		s.pc = nil
		s.localTrack = nil
		s.mu.Unlock()

		if pc != nil {
			if err := pc.Close(); err != nil {
				s.logger.Debugw("Peer connection close failed", "error", err)
				s.closeErr = err
			}
		}
		// pc.Close unblocks track.Read, so the readers drain promptly.
		s.readerWg.Wait()

		if err := s.transport.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.logger.Infow("Room session closed", "room", s.room, "identity", s.identity)
	})
	return s.closeErr
}
