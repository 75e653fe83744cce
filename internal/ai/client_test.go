package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"apec/internal/apperr"
	"apec/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *models.OpenAISettings {
	return &models.OpenAISettings{Model: "gpt-4o", APIKey: "sk-test"}
}

func gatewayStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestGenerateReport(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"Report body."}}]}`)
	defer srv.Close()

	c := New(srv.URL)
	rt := &models.ReportType{Name: "Ultrasonic"}
	out, err := c.GenerateReport(context.Background(), testSettings(), rt,
		[]string{"excerpt"}, map[string]string{"location": "Site A"})
	require.NoError(t, err)
	assert.Equal(t, "Report body.", out)
}

func TestReviewReportParsesJSON(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"{\"qualityScore\":82,\"completenessIssues\":[\"missing date\"],\"consistencyIssues\":[],\"enhancements\":[],\"overallFeedback\":\"solid\"}"}}]}`)
	defer srv.Close()

	c := New(srv.URL)
	review, err := c.ReviewReport(context.Background(), testSettings(), "report text")
	require.NoError(t, err)
	assert.Equal(t, 82, review.QualityScore)
	require.Len(t, review.CompletenessIssues, 1)
	assert.Equal(t, "solid", review.OverallFeedback)
}

func TestGatewayErrorMapping(t *testing.T) {
	cases := []struct {
		status  int
		message string
	}{
		{http.StatusTooManyRequests, "AI rate limit exceeded, try again shortly"},
		{http.StatusUnauthorized, "invalid OpenAI API key"},
		{http.StatusPaymentRequired, "AI credits exhausted"},
		{http.StatusInternalServerError, "AI request failed"},
	}

	for _, tc := range cases {
		srv := gatewayStub(t, tc.status, `{"error":"nope"}`)
		c := New(srv.URL)

		_, err := c.GenerateReport(context.Background(), testSettings(),
			&models.ReportType{Name: "MT"}, nil, nil)
		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
		assert.Equal(t, tc.message, apperr.UserMessage(err))
		srv.Close()
	}
}

func TestListModels(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`)
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.ListModels(context.Background(), "sk-test")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "gpt-4o", got[0].ID)
}

func TestEmptyChoices(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK, `{"choices":[]}`)
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GenerateReport(context.Background(), testSettings(),
		&models.ReportType{Name: "MT"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
}
