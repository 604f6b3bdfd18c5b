package game

import "time"

type tickerGen struct{}

func NewTickerGen() TickerCreator {
	return tickerGen{}
}

func (tickerGen) Create(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
