package logx

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// AccountFieldName is the key the ring sink uses as the event context column.
const AccountFieldName = "account"

// Field adds one key to an event. Later fields overwrite earlier ones with the same key.
type Field func(e *zerolog.Event)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }

func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }

func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }

func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }

func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }

func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }

func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err records err under "err". A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Account tags an event with the dashboard label of an account ("Account 3").
func Account(index int) Field {
	return func(e *zerolog.Event) { e.Str(AccountFieldName, "Account "+strconv.Itoa(index)) }
}
