package log_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-coordinator/log"
)

func TestLogLevels(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	prev := log.Swap(log.WithWriter(log.LogLevelInfo, &buf))
	defer log.Swap(prev)

	log.Debug("hidden")
	c.Assert(buf.Len(), qt.Equals, 0)

	log.Infow("batch processed", "batch", 3, "phase", "processing")
	var line map[string]any
	c.Assert(json.Unmarshal(buf.Bytes(), &line), qt.IsNil)
	c.Assert(line["message"], qt.Equals, "batch processed")
	c.Assert(line["batch"], qt.Equals, float64(3))
	c.Assert(line["phase"], qt.Equals, "processing")
	c.Assert(log.Level(), qt.Equals, log.LogLevelInfo)

	buf.Reset()
	log.Errorw(errors.New("boom"), "prove failed")
	c.Assert(json.Unmarshal(buf.Bytes(), &line), qt.IsNil)
	c.Assert(line["error"], qt.Equals, "boom")
	c.Assert(line["level"], qt.Equals, "error")
}

func TestInvalidLevel(t *testing.T) {
	c := qt.New(t)
	c.Assert(func() { log.WithWriter("verbose", &bytes.Buffer{}) }, qt.PanicMatches, `invalid log level: "verbose"`)
}
