package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const (
	inputChannelBuffer  = 64
	outputChannelBuffer = 64
)

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Incoming Opus packets are demuxed by SSRC,
// resolved to Discord user IDs via speaking updates, decoded to PCM and
// delivered on per-participant input streams. Outgoing PCM frames are
// encoded to Opus for transmission.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	inputsMu sync.Mutex
	inputs   map[string]chan audio.Frame // keyed by Discord user ID
	ssrcUser map[uint32]string           // SSRC -> user ID, fed by speaking updates
	closed   bool

	output chan audio.Frame

	changeCb func(audio.Event)
	changeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel.
// It starts background goroutines for receiving and sending audio.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		inputs:       make(map[string]chan audio.Frame),
		ssrcUser:     make(map[uint32]string),
		output:       make(chan audio.Frame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// Register a VoiceStateUpdate handler to detect participant join/leave.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	// Speaking updates carry the SSRC to user mapping; Discord sends one
	// before a participant's audio starts flowing.
	vc.AddHandler(c.handleSpeaking)

	// Start the receive loop (reads Opus from Discord, demuxes by SSRC, decodes to PCM).
	go c.recvLoop()

	// Start the send loop (reads PCM from output channel, encodes to Opus, sends to Discord).
	go c.sendLoop()

	return c, nil
}

// InputStreams returns a snapshot of the current per-participant audio channels.
// The map key is the Discord user ID; the value is the read-only input channel.
func (c *Connection) InputStreams() map[string]<-chan audio.Frame {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	snap := make(map[string]<-chan audio.Frame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

// OutputStream returns the write-only channel for synthesized audio output.
// Frames written here are encoded to Opus and sent to Discord.
func (c *Connection) OutputStream() chan<- audio.Frame {
	return c.output
}

// OnParticipantChange registers cb as the callback for participant join/leave
// events. Only one callback may be registered; subsequent calls replace the
// previous one.
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect cleanly tears down the voice connection and stops all background
// goroutines. It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		// Close all input channels so downstream segmenters flush and finish.
		c.inputsMu.Lock()
		c.closed = true
		for id, ch := range c.inputs {
			close(ch)
			delete(c.inputs, id)
		}
		c.inputsMu.Unlock()
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, demuxes them
// by SSRC, decodes Opus to PCM, and delivers Frames to per-participant channels.
func (c *Connection) recvLoop() {
	// Each SSRC keeps its own decoder so decoder state survives across that
	// stream's consecutive packets.
	decoders := make(map[uint32]*opusDecoder)

	// Per-participant frame counters.
	seqs := make(map[string]uint64)

	// SSRCs already logged as unresolved, to keep stragglers quiet.
	unresolved := make(map[uint32]bool)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			userID := c.lookupUser(pkt.SSRC)
			if userID == "" {
				// No speaking update has named this SSRC yet. Discord announces
				// the mapping before audio, so this is either a straggler after
				// a leave or out-of-order delivery.
				if !unresolved[pkt.SSRC] {
					unresolved[pkt.SSRC] = true
					slog.Debug("discord: dropping packet from unresolved ssrc", "ssrc", pkt.SSRC)
				}
				continue
			}
			delete(unresolved, pkt.SSRC)

			// Lazily create a decoder for this SSRC.
			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "user", userID, "error", err)
				continue
			}

			seqs[userID]++
			c.deliver(userID, audio.Frame{
				Data:          pcm,
				SampleRate:    opusSampleRate,
				Channels:      opusChannels,
				ParticipantID: userID,
				Seq:           seqs[userID],
				Timestamp:     time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
			})
		}
	}
}

// deliver hands frame to userID's input channel, creating the channel on first
// audio. Creation, sends and closes all happen under inputsMu so a concurrent
// close can never race a send.
func (c *Connection) deliver(userID string, frame audio.Frame) {
	c.inputsMu.Lock()
	if c.closed {
		c.inputsMu.Unlock()
		return
	}
	ch, exists := c.inputs[userID]
	if !exists {
		ch = make(chan audio.Frame, inputChannelBuffer)
		c.inputs[userID] = ch
	}
	select {
	case ch <- frame:
	default:
		// Channel full — drop the frame rather than block the receive loop.
	}
	c.inputsMu.Unlock()

	if !exists {
		// A participant who was already in the channel when we joined produces
		// no VoiceStateUpdate; their first audio is the join signal then.
		c.emitEvent(audio.Event{Type: audio.EventJoin, ParticipantID: userID})
	}
}

// sendLoop reads PCM Frames from the output channel, converts them to
// Discord's target format (48 kHz stereo), extracts exact Opus frame-sized
// chunks, encodes them to Opus, and sends the encoded data via the Discord
// voice connection.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	conv := audio.Converter{Target: audio.FormatDiscord}

	// Signal speaking when we start sending audio.
	speakingSet := false

	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	var buf []byte

	for {
		select {
		case <-c.done:
			if speakingSet {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speakingSet {
				c.setSpeaking(true)
				speakingSet = true
			}

			// Convert to Discord's target format (48 kHz stereo).
			frame = conv.Convert(frame)

			buf = append(buf, frame.Data...)

			// Encode and send complete Opus frames.
			for len(buf) >= opusFrameBytes {
				opus, eErr := enc.encode(buf[:opusFrameBytes])
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					buf = buf[opusFrameBytes:]
					continue
				}
				buf = buf[opusFrameBytes:]

				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleSpeaking records the SSRC to user mapping that Discord announces
// before a participant's audio starts flowing.
func (c *Connection) handleSpeaking(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	c.inputsMu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.inputsMu.Unlock()
}

// lookupUser returns the user ID a speaking update associated with ssrc, or
// an empty string if the SSRC is unknown.
func (c *Connection) lookupUser(ssrc uint32) string {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	return c.ssrcUser[ssrc]
}

// handleVoiceStateUpdate processes Discord VoiceStateUpdate events to detect
// participant joins and leaves for the voice channel this connection is on.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID

	// Participant left our channel.
	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		c.closeInput(vsu.UserID)
		c.emitEvent(audio.Event{
			Type:          audio.EventLeave,
			ParticipantID: vsu.UserID,
			DisplayName:   memberDisplayName(vsu.Member),
		})
		return
	}

	// Participant joined our channel.
	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		c.emitEvent(audio.Event{
			Type:          audio.EventJoin,
			ParticipantID: vsu.UserID,
			DisplayName:   memberDisplayName(vsu.Member),
		})
	}
}

// closeInput closes and removes userID's input stream so the downstream
// segmenter flushes, and forgets any SSRC entries pointing at them so
// straggler packets are dropped.
func (c *Connection) closeInput(userID string) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	if ch, ok := c.inputs[userID]; ok {
		close(ch)
		delete(c.inputs, userID)
	}
	for ssrc, id := range c.ssrcUser {
		if id == userID {
			delete(c.ssrcUser, ssrc)
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

// emitEvent safely invokes the registered participant change callback.
func (c *Connection) emitEvent(ev audio.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}

// memberDisplayName picks the friendliest name a member carries: server
// nickname, then global display name, then username.
func memberDisplayName(m *discordgo.Member) string {
	if m == nil || m.User == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
