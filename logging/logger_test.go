package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter(t *testing.T) {
	f := &CustomFormatter{SystemName: "team-tasks"}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Event ID: TEST, Description: hello",
		Data:    logrus.Fields{"request_id": "req-1"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.Contains(t, line, "Date: 2024-03-05, Time: 14:07:09, ")
	assert.Contains(t, line, "Event Source: team-tasks, ")
	assert.Contains(t, line, "Event Type: WARNING, ")
	assert.Contains(t, line, "Message: Event ID: TEST, Description: hello")
	assert.Contains(t, line, "Request ID: req-1")
	assert.True(t, bytes.HasSuffix(out, []byte("\n")))
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestInitLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger(Options{File: path, Level: "debug"}))
	t.Cleanup(func() { Logger.SetOutput(os.Stdout) })

	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
	_, err := os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}
