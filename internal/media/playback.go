package media

import "time"

// Playback: единственное активное воспроизведение голосового. Advance вызывает
// владелец по одному тикеру; Start заменяет то, что играло.
type Playback struct {
	MessageID string        `json:"messageId"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
	Playing   bool          `json:"playing"`
}

// Start играет сообщение с начала. Прежнее воспроизведение сбрасывается,
// таймер перезапускает вызывающий.
func (p *Playback) Start(messageID string, duration time.Duration) {
	*p = Playback{MessageID: messageID, Duration: duration, Playing: duration > 0}
}

// Advance сдвигает позицию на step. true, когда воспроизведение закончилось.
func (p *Playback) Advance(step time.Duration) bool {
	if !p.Playing {
		return false
	}
	p.Position += step
	if p.Position >= p.Duration {
		p.Position = 0
		p.Playing = false
		return true
	}
	return false
}

func (p *Playback) Stop() bool {
	if !p.Playing {
		return false
	}
	p.Playing = false
	return true
}

// Progress: позиция в процентах от длительности.
func (p *Playback) Progress() int {
	if p.Duration <= 0 {
		return 0
	}
	return int(p.Position * 100 / p.Duration)
}
