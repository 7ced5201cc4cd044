package llmsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/testutil"
)

// newTestClient returns a Client talking to a server answering every completion with content,
// or with status when it is not 200.
func newTestClient(t *testing.T, status int, content string) (*Client, *[]chatRequest) {
	var received []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		received = append(received, req)

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.LLM.BaseURL = srv.URL + "/"
	conf.LLM.APIKey = " test-key "
	return NewClient(conf, testutil.NewLogger(t)), &received
}

func assertExternalErr(t *testing.T, err error, wantStatus int) {
	t.Helper()
	var extErr *core.ExternalServiceError
	if assert.True(t, errors.As(err, &extErr), "error = %v, want *core.ExternalServiceError", err) {
		assert.Equal(t, serviceName, extErr.Service)
		assert.Equal(t, wantStatus, extErr.StatusCode)
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	conf := core.NewTestConfig()
	conf.LLM.BaseURL = "http://127.0.0.1:1"
	conf.LLM.APIKey = "  "
	c := NewClient(conf, testutil.NewLogger(t))

	_, err := c.Complete(context.Background(), "hi", 0)
	assertExternalErr(t, err, 0)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestClient_GradeOpenEnded(t *testing.T) {
	req := grading.OpenEndedRequest{
		Question:       "Define variance.",
		ExpectedAnswer: "Average squared deviation from the mean",
		StudentAnswer:  "How spread out values are",
		MaxPoints:      10,
	}

	tests := []struct {
		name       string
		status     int
		content    string
		want       grading.Outcome
		wantErr    bool
		wantStatus int
	}{
		{name: "plain json", status: 200, content: `{"score": 8, "feedback": "Good"}`, want: grading.Outcome{Score: 8, Feedback: "Good"}},
		{
			name: "fenced json", status: 200, content: "```json\n{\"score\": 7.5, \"feedback\": \"Close\"}\n```",
			want: grading.Outcome{Score: 7.5, Feedback: "Close"},
		},
		{
			name: "out of range score is not clamped", status: 200, content: `{"score": 12, "feedback": "Wow"}`,
			want: grading.Outcome{Score: 12, Feedback: "Wow"},
		},
		{
			name: "blank feedback", status: 200, content: `{"score": 3, "feedback": ""}`,
			want: grading.Outcome{Score: 3, Feedback: grading.NoFeedback},
		},
		{name: "missing score", status: 200, content: `{"feedback": "Good"}`, wantErr: true},
		{name: "missing feedback", status: 200, content: `{"score": 8}`, wantErr: true},
		{name: "not json", status: 200, content: "I think this deserves an 8.", wantErr: true},
		{name: "upstream error", status: 500, wantErr: true, wantStatus: 500},
		{name: "rate limited", status: 429, wantErr: true, wantStatus: 429},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, received := newTestClient(t, tt.status, tt.content)

			got, err := c.GradeOpenEnded(context.Background(), req)
			if tt.wantErr {
				assertExternalErr(t, err, tt.wantStatus)
				return
			}
			if assert.NoError(t, err) {
				assert.Equal(t, tt.want, got)
			}
			if assert.Len(t, *received, 1) {
				sent := (*received)[0]
				assert.Equal(t, "openai/gpt-3.5-turbo", sent.Model)
				assert.Equal(t, 0.3, sent.Temperature)
				assert.Contains(t, sent.Messages[0].Content, "Student Answer: How spread out values are")
				assert.Contains(t, sent.Messages[0].Content, "Maximum Points: 10")
			}
		})
	}
}

func TestClient_GenerateQuiz(t *testing.T) {
	quiz := "```json\n" + `{"questions": [
		{"id": "q1", "question": "Define the median.", "type": "open_ended", "correctAnswer": "The middle value", "points": 15},
		{"id": "q2", "question": "Mode of 1,1,2?", "type": "multiple_choice", "options": ["1", "2"], "correctAnswer": "1", "points": 10}
	]}` + "\n```"

	c, received := newTestClient(t, 200, quiz)
	got, err := c.GenerateQuiz(context.Background(), "Mean, median and mode.", core.SubjectStatistics)
	if assert.NoError(t, err) {
		assert.Equal(t, []assignment.Question{
			{ID: "q1", Text: "Define the median.", Type: assignment.QuestionOpenEnded, CorrectAnswer: "The middle value", Points: 15},
			{
				ID: "q2", Text: "Mode of 1,1,2?", Type: assignment.QuestionMultipleChoice,
				Options: []string{"1", "2"}, CorrectAnswer: "1", Points: 10,
			},
		}, got)
	}
	if assert.Len(t, *received, 1) {
		assert.Equal(t, 0.7, (*received)[0].Temperature)
		assert.Contains(t, (*received)[0].Messages[0].Content, "for Statistics")
	}

	t.Run("no questions", func(t *testing.T) {
		c, _ := newTestClient(t, 200, `{"questions": []}`)
		_, err := c.GenerateQuiz(context.Background(), "x", core.SubjectStatistics)
		assertExternalErr(t, err, 0)
	})

	t.Run("upstream error", func(t *testing.T) {
		c, _ := newTestClient(t, 502, "")
		_, err := c.GenerateQuiz(context.Background(), "x", core.SubjectStatistics)
		assertExternalErr(t, err, 502)
	})
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":1}`, want: `{"a":1}`},
		{in: "  ```json\n{\"a\":1}\n```  ", want: `{"a":1}`},
		{in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: "```json{\"a\":1}```", want: `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
