package stdlib

import (
	"fmt"
	"time"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parse_date(ISO8601 date or datetime) → unix seconds, or false
func stdlibParseDate(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, ok := args[0].(evaluator.String)
	if !ok {
		return evaluator.NewBool(false), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s.Value); err == nil {
			return evaluator.NewNumber(float64(t.Unix())), nil
		}
	}
	return evaluator.NewBool(false), nil
}

var timestampFormats = map[string]string{
	"datetime": "2006-01-02T15:04:05Z",
	"date":     "2006-01-02",
	"time":     "15:04:05",
}

// timestamp_to_string(timestamp [, 'datetime'|'date'|'time']), in UTC
func stdlibTimestampToString(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	ts, err := integer(args[0], "timestamp")
	if err != nil {
		return nil, err
	}
	format := "datetime"
	if len(args) == 2 {
		format, err = str(args[1])
		if err != nil {
			return nil, err
		}
	}
	layout, ok := timestampFormats[format]
	if !ok {
		return nil, fmt.Errorf("format must be datetime, date or time, got %q", format)
	}
	return evaluator.NewString(time.Unix(int64(ts), 0).UTC().Format(layout)), nil
}
