package cursor

import "github.com/logflow/trackgen/internal/model"

// RolloverEvent describes a move from one source to the next.
type RolloverEvent struct {
	From  model.Source
	To    model.Source
	Index int
}

// ExhaustedEvent describes running past the last source.
type ExhaustedEvent struct {
	Last    model.Source
	Sources int
}

// Observer receives advisory notices. Observers cannot affect the cursor.
type Observer interface {
	OnRollover(RolloverEvent)
	OnExhausted(ExhaustedEvent)
}

// Funcs adapts plain functions to Observer. Nil fields are skipped.
type Funcs struct {
	Rollover  func(RolloverEvent)
	Exhausted func(ExhaustedEvent)
}

// OnRollover implements Observer.
func (f Funcs) OnRollover(e RolloverEvent) {
	if f.Rollover != nil {
		f.Rollover(e)
	}
}

// OnExhausted implements Observer.
func (f Funcs) OnExhausted(e ExhaustedEvent) {
	if f.Exhausted != nil {
		f.Exhausted(e)
	}
}

// Observers fans notices out to several observers in order.
type Observers []Observer

// OnRollover implements Observer.
func (os Observers) OnRollover(e RolloverEvent) {
	for _, o := range os {
		o.OnRollover(e)
	}
}

// OnExhausted implements Observer.
func (os Observers) OnExhausted(e ExhaustedEvent) {
	for _, o := range os {
		o.OnExhausted(e)
	}
}

var (
	_ Observer = Funcs{}
	_ Observer = Observers(nil)
)
