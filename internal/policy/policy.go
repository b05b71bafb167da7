// Package policy holds the pure content-selection decisions for warming sends.
//
// Given configured frequencies and a random source it decides which channel an
// outbound turn uses and whether an inbound message additionally receives an
// emoji reaction. Evaluation order is fixed: media first, sticker second, text
// last. A disabled policy never consumes a random draw, so seeded sequences
// stay reproducible in tests.
package policy

import (
	"math/rand/v2"

	"github.com/warmline/warmline/internal/models"
)

// Channel is the modality chosen for an outbound send.
type Channel string

const (
	ChannelText    Channel = "text"
	ChannelSticker Channel = "sticker"
	ChannelMedia   Channel = "media"
)

// ChooseChannel picks the channel for the next outbound turn. Each frequency
// is the probability of choosing that channel given that evaluation reached
// its check, not a global probability.
func ChooseChannel(media models.MediaPolicy, sticker models.StickerPolicy, r *rand.Rand) Channel {
	if media.Enabled && r.Float64() < media.Frequency {
		return ChannelMedia
	}
	if sticker.Enabled && r.Float64() < sticker.Frequency {
		return ChannelSticker
	}
	return ChannelText
}

// ShouldReact decides whether to schedule an additional emoji reaction for an
// inbound message. Reactions stack with the text reply rather than competing
// with the channel choice.
func ShouldReact(probability float64, r *rand.Rand) bool {
	if probability <= 0 {
		return false
	}
	return r.Float64() < probability
}
