package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerProdLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("prod", &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("ожидали info, получили %s", logger.GetLevel())
	}
	logger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug-сообщение не должно попадать в вывод")
	}
	l := Component(logger, "publish")
	l.Info().Msg("готово")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("ожидали JSON: %v", err)
	}
	if line["component"] != "publish" {
		t.Fatalf("ожидали component=publish, получили %v", line["component"])
	}
}

func TestNewLoggerDevLevel(t *testing.T) {
	logger := newLogger("dev", &bytes.Buffer{})
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("ожидали debug, получили %s", logger.GetLevel())
	}
}
