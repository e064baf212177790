package logging

import (
	"bytes"
	"testing"

	"go.viam.com/test"
)

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.out)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLevelJSON(t *testing.T) {
	data, err := WARN.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `"Warn"`)

	var level Level
	test.That(t, level.UnmarshalJSON([]byte(`"debug"`)), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, DEBUG)
}

func TestObservedLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("frame written", "index", 3)
	logger.Debugf("table built in %dms", 12)

	test.That(t, logs.FilterMessage("frame written").Len(), test.ShouldEqual, 1)
	entry := logs.FilterMessage("frame written").All()[0]
	test.That(t, entry.ContextMap()["index"], test.ShouldEqual, int64(3))
	test.That(t, logs.FilterMessageSnippet("table built").Len(), test.ShouldEqual, 1)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("calib")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(WARN)

	logger.Info("hidden")
	logger.Warn("shown")
	test.That(t, buf.String(), test.ShouldNotContainSubstring, "hidden")
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown")
	test.That(t, buf.String(), test.ShouldContainSubstring, "calib")

	sub := logger.Sublogger("solver")
	sub.Errorw("singular", "views", 2)
	test.That(t, buf.String(), test.ShouldContainSubstring, "calib.solver")
	test.That(t, buf.String(), test.ShouldContainSubstring, `"views":2`)
}
