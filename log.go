/*
 * Copyright 2025 ringloop Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ringloop

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joeycumines/logiface"
)

// Logger is the structured logger interface the runtime logs through.
// Config.Logger may be set to any *logiface.Logger[logiface.Event]; leaving
// it unset yields a no-op logger that does no work on disabled levels.
type Logger = *logiface.Logger[logiface.Event]

// noopLogger is used whenever Config.Logger is left nil.
var noopLogger = logiface.New[logiface.Event](
	logiface.WithEventFactory[logiface.Event](logiface.EventFactoryFunc[logiface.Event](func(level logiface.Level) logiface.Event {
		return &textEvent{lvl: logiface.LevelDisabled}
	})),
)

// NewTextLogger builds a Logger that writes one line per event to w, at or
// above minLevel. Fields are rendered key=value, space separated, in the
// order they were added. This is the runtime's bundled writer backend;
// embedders with their own logiface sink (zerolog, logrus, slog adapters)
// can construct a *logiface.Logger directly instead and pass it through
// Config.Logger.
func NewTextLogger(w io.Writer, minLevel logiface.Level) Logger {
	return logiface.New[logiface.Event](
		logiface.WithLevel[logiface.Event](minLevel),
		logiface.WithEventFactory[logiface.Event](logiface.EventFactoryFunc[logiface.Event](func(level logiface.Level) logiface.Event {
			return &textEvent{lvl: level}
		})),
		logiface.WithWriter[logiface.Event](textWriter{w: w}),
	)
}

// textEvent is a minimal logiface.Event implementation: it renders fields
// into a line buffer rather than building a tree, which is all a flat
// operational log needs.
type textEvent struct {
	logiface.UnimplementedEvent
	lvl  logiface.Level
	msg  string
	pool *sync.Pool
	buf  strings.Builder
}

func (e *textEvent) Level() logiface.Level { return e.lvl }

func (e *textEvent) AddField(key string, val any) {
	fmt.Fprintf(&e.buf, " %s=%v", key, val)
}

func (e *textEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *textEvent) AddError(err error) bool {
	if err != nil {
		fmt.Fprintf(&e.buf, " error=%q", err.Error())
	}
	return true
}

func (e *textEvent) AddString(key string, val string) bool {
	fmt.Fprintf(&e.buf, " %s=%q", key, val)
	return true
}

func (e *textEvent) AddInt(key string, val int) bool {
	fmt.Fprintf(&e.buf, " %s=%d", key, val)
	return true
}

func (e *textEvent) AddInt64(key string, val int64) bool {
	fmt.Fprintf(&e.buf, " %s=%d", key, val)
	return true
}

func (e *textEvent) AddUint64(key string, val uint64) bool {
	fmt.Fprintf(&e.buf, " %s=%d", key, val)
	return true
}

func (e *textEvent) AddBool(key string, val bool) bool {
	fmt.Fprintf(&e.buf, " %s=%t", key, val)
	return true
}

type textWriter struct{ w io.Writer }

func (tw textWriter) Write(event logiface.Event) error {
	e, ok := event.(*textEvent)
	if !ok {
		return nil
	}
	_, err := fmt.Fprintf(tw.w, "%s %s\n", e.msg, strings.TrimPrefix(e.buf.String(), " "))
	return err
}

// DefaultLogger is a text logger at informational level, writing to
// os.Stderr. It is a reasonable default for an embedder that wants visible
// warnings without wiring its own sink.
func DefaultLogger() Logger {
	return NewTextLogger(os.Stderr, logiface.LevelInformational)
}
