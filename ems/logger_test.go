package ems

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestZerologSinkTagsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	sink.Info("frame accepted", "device", 0x08, "kind", "polreq")

	out := buf.String()
	require.Contains(t, out, `"subsystem":"ems"`)
	require.Contains(t, out, `"message":"frame accepted"`)
	require.Contains(t, out, `"device":8`)
	require.Contains(t, out, `"kind":"polreq"`)
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf).Level(zerolog.InfoLevel))

	sink.Warn("watchdog retriggered", "tries", 2)
	require.Contains(t, buf.String(), `"level":"warn"`)
	buf.Reset()

	sink.Error("checksum mismatch")
	require.Contains(t, buf.String(), `"level":"error"`)
}

func TestZerologSinkIgnoresOddTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	sink.Info("short frame", "length", 2, "dangling")

	out := buf.String()
	require.Contains(t, out, `"length":2`)
	require.NotContains(t, out, "dangling")
}
