package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleMarket   = uint64(7)
	sampleHandle   = []byte{0xde, 0xad, 0xbe, 0xef}
	sampleOptions  = []string{"Up", "Down", "Flat"}
	sampleDuration = 250 * time.Millisecond

	errSample = errors.New("transfer rejected")
)

func doLogs() {
	Infof("market %d created with %d options", sampleMarket, len(sampleOptions))
	Debugw("selection placed", "marketId", sampleMarket, "stake", sampleHandle)
	Errorf("cannot commit selection: %v", errSample)
	Warnw("slow commit",
		"options", sampleOptions,
		"duration", sampleDuration,
	)
	Error(errSample)
}

func TestLevels(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	for _, level := range []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		Init(level, "stderr", nil)
		c.Assert(Level(), qt.Equals, level)
	}
	c.Assert(func() { Init("verbose", "stderr", nil) }, qt.PanicMatches, `invalid log level: "verbose"`)
}

func TestOutputWriter(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() {
		logTestWriter = nil
		Init(LogLevelError, "stderr", nil)
	})

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	logTestWriter = buf
	Init(LogLevelInfo, logTestWriterName, errBuf)

	Debugw("hidden", "k", 1)
	Infow("market created", "marketId", 3)
	Warnw("market closed", "marketId", 3)

	c.Assert(strings.Contains(buf.String(), "hidden"), qt.IsFalse)
	c.Assert(strings.Contains(buf.String(), "market created"), qt.IsTrue)
	c.Assert(strings.Contains(buf.String(), "marketId=3"), qt.IsTrue)
	// the error output only receives warnings and above
	c.Assert(strings.Contains(errBuf.String(), "market created"), qt.IsFalse)
	c.Assert(strings.Contains(errBuf.String(), "market closed"), qt.IsTrue)
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() {
		panicOnInvalidChars = false
		Init(LogLevelError, "stderr", nil)
	})

	v := []byte{'s', 't', 'a', 'k', 'e', 0xff, 'x'}
	panicOnInvalidChars = false
	Init(LogLevelDebug, "stderr", nil)
	Debugf("%s", v)

	panicOnInvalidChars = true
	Init(LogLevelDebug, "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard
	Init(LogLevelDebug, logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
