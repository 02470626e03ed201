package music

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"
)

// VoiceJoiner is satisfied by *discordgo.Session.
type VoiceJoiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

// DCATransport streams audio into Discord voice through ffmpeg via dca.
type DCATransport struct {
	joiner  VoiceJoiner
	bitrate int
}

func NewDCATransport(joiner VoiceJoiner, bitrate int) *DCATransport {
	return &DCATransport{joiner: joiner, bitrate: bitrate}
}

func (t *DCATransport) Join(_ context.Context, guildID, channelID string) (Connection, error) {
	vc, err := t.joiner.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return &dcaConnection{vc: vc, bitrate: t.bitrate}, nil
}

type dcaConnection struct {
	vc      *discordgo.VoiceConnection
	bitrate int
}

func (c *dcaConnection) Play(ctx context.Context, streamURL string) error {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	if c.bitrate > 0 {
		opts.Bitrate = c.bitrate
	}
	opts.Application = dca.AudioApplicationAudio

	encoder, err := dca.EncodeFile(streamURL, &opts)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	defer encoder.Cleanup()

	_ = c.vc.Speaking(true)
	defer func() { _ = c.vc.Speaking(false) }()

	done := make(chan error, 1)
	dca.NewStream(encoder, c.vc, done)

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case <-ctx.Done():
		_ = encoder.Stop()
		return ctx.Err()
	}
}

func (c *dcaConnection) Disconnect() error {
	return c.vc.Disconnect()
}
