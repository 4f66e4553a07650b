package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// A Field attaches one key/value pair to a log event. Fields apply in
// order, so a repeated key keeps the later value. The console writer
// renders them as key=value pairs; JSON sinks keep them structured.
//
// The type is opaque on purpose: callers build fields through the
// constructors below and only the emit path applies them.
type Field struct {
	apply func(*zerolog.Event)
}

func field(fn func(*zerolog.Event)) Field { return Field{apply: fn} }

func String(k, v string) Field  { return field(func(e *zerolog.Event) { e.Str(k, v) }) }
func Int(k string, v int) Field { return field(func(e *zerolog.Event) { e.Int(k, v) }) }
func Bool(k string, v bool) Field {
	return field(func(e *zerolog.Event) { e.Bool(k, v) })
}
func Duration(k string, v time.Duration) Field {
	return field(func(e *zerolog.Event) { e.Dur(k, v) })
}
func Time(k string, v time.Time) Field {
	return field(func(e *zerolog.Event) { e.Time(k, v) })
}
func Any(k string, v any) Field {
	return field(func(e *zerolog.Event) { e.Interface(k, v) })
}

// Err records err under the standard error key. A nil err adds nothing.
func Err(err error) Field {
	return field(func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	})
}
