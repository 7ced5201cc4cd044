package core_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alyxedu/alyx/core"
)

type errorsLogger struct {
	mu   sync.Mutex
	errs []string
}

func (l *errorsLogger) Debug(string, ...interface{}) {}
func (l *errorsLogger) Info(string, ...interface{})  {}
func (l *errorsLogger) Warn(string, ...interface{})  {}
func (l *errorsLogger) Fatal(msg string, args ...interface{}) {
	l.Error(msg, args...)
}
func (l *errorsLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func TestParseEmailTemplates(t *testing.T) {
	logger := &errorsLogger{}
	core.ParseEmailTemplates(logger)
	if !assert.Empty(t, logger.errs) {
		return
	}

	conf := core.NewTestConfig()
	msg := &core.EmailMessage{
		TemplateName: "submission_graded",
		TemplateData: struct {
			StudentName     string
			AssignmentTitle string
			SubmissionID    string
			TotalScore      float64
			MaxScore        float64
			NeedsReview     bool
		}{"Alex Smith", "Stats 101", "sub-1", 28, 30, true},
	}
	if err := msg.Render(conf); !assert.NoError(t, err) {
		return
	}

	for _, want := range []string{
		"Hello Alex Smith,",
		`"Stats 101"`,
		"28.00 / 30.00",
		"reviewed by your teacher",
		fmt.Sprintf("The %s team", conf.AppName),
	} {
		assert.True(t, strings.Contains(msg.TextContent, want), "text content %q misses %q", msg.TextContent, want)
	}
	assert.True(t, strings.Contains(msg.HTMLContent, "<title>"+conf.AppName+"</title>"), "html content = %q", msg.HTMLContent)
}

func TestEmailMessage_Render(t *testing.T) {
	core.ParseEmailTemplates(&errorsLogger{})
	conf := core.NewTestConfig()

	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantText string
		wantErr  bool
	}{
		{name: "plain body", msg: core.EmailMessage{BodyStr: "hi"}, wantText: "hi"},
		{name: "no content", msg: core.EmailMessage{}},
		{name: "unknown template", msg: core.EmailMessage{TemplateName: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render(conf)
			if (err != nil) != tt.wantErr {
				t.Errorf("Render() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.wantText, msg.TextContent)
		})
	}
}
