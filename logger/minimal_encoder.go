package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	fg       string
	time     string
	id       string
	number   string
	accent   string
	warn     string
	warnBg   string
	err      string
	errBg    string
	symbol   string
	subtle   string
	positive string
}

var palettes = map[string]palette{
	"gruvbox": {
		fg:       "\x1b[38;5;223m",
		time:     "\x1b[38;5;108m",
		id:       "\x1b[38;5;109m",
		number:   "\x1b[38;5;175m",
		accent:   "\x1b[38;5;208m",
		warn:     "\x1b[38;5;214m",
		warnBg:   "\x1b[48;5;58m",
		err:      "\x1b[38;5;167m",
		errBg:    "\x1b[48;5;88m",
		symbol:   "\x1b[38;5;142m",
		subtle:   "\x1b[38;5;245m",
		positive: "\x1b[38;5;142m",
	},
	"everforest": {
		fg:       "\x1b[38;5;223m",
		time:     "\x1b[38;5;107m",
		id:       "\x1b[38;5;109m",
		number:   "\x1b[38;5;108m",
		accent:   "\x1b[38;5;208m",
		warn:     "\x1b[38;5;179m",
		warnBg:   "\x1b[48;5;58m",
		err:      "\x1b[38;5;167m",
		errBg:    "\x1b[48;5;52m",
		symbol:   "\x1b[38;5;108m",
		subtle:   "\x1b[38;5;65m",
		positive: "\x1b[38;5;108m",
	},
}

var currentTheme = "everforest"

// SetTheme configures the color scheme for console output (gruvbox, everforest)
func SetTheme(theme string) {
	if _, ok := palettes[theme]; ok {
		currentTheme = theme
	}
}

func colors() palette {
	return palettes[currentTheme]
}

// minimalEncoder renders calm, compact console lines:
//
//	13:04:35  p.batch  ꩜ Job suspended  42 (remaining 9)
type minimalEncoder struct {
	zapcore.Encoder
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := buffer.NewPool().Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if lvl := levelString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(c.accent)
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	if symbol := findField(fields, FieldSymbol); symbol != "" {
		final.AppendString(c.symbol + symbol + colorReset + " ")
	}
	final.AppendString(c.fg + ent.Message + colorReset)

	if values := extractFieldValues(fields); values != "" {
		final.AppendString("  ")
		final.AppendString(values)
	}

	final.AppendString("\n")
	return final, nil
}

// levelString returns bold colored labels for WARN and above; INFO and DEBUG stay quiet
func levelString(level zapcore.Level) string {
	c := colors()
	switch {
	case level == zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	case level >= zapcore.ErrorLevel:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	case level == zapcore.DebugLevel:
		return c.subtle + "debug" + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: pulse.batch -> p.batch
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

func findField(fields []zapcore.Field, key string) string {
	for _, f := range fields {
		if f.Key == key {
			return fieldValue(f)
		}
	}
	return ""
}

// fieldValue extracts a printable value from a zap field
func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.DurationType:
		return time.Duration(field.Integer).String()
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// extractFieldValues keeps only the fields an operator scans for and renders
// them compactly: "42 @alice (remaining 9) 120ms"
func extractFieldValues(fields []zapcore.Field) string {
	c := colors()
	var values []string
	var tail []string

	for _, field := range fields {
		val := fieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldJobID:
			values = append(values, c.id+val+colorReset)
		case FieldIdentifier:
			values = append(values, c.id+"@"+val+colorReset)
		case FieldRemaining:
			tail = append(tail, "remaining "+c.number+val+colorReset)
		case FieldProgress:
			tail = append(tail, c.number+val+colorReset+"%")
		case FieldRows:
			tail = append(tail, c.number+val+colorReset+" rows")
		case FieldDurationMS:
			values = append(values, c.number+val+colorReset+"ms")
		case FieldError:
			values = append(values, c.err+val+colorReset)
		}
	}

	if len(tail) > 0 {
		values = append(values, c.fg+"("+strings.Join(tail, ", ")+c.fg+")"+colorReset)
	}
	return strings.Join(values, " ")
}
