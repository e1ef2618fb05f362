package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/engine/enginetest"
	"github.com/use-agent/pagecapture/models"
)

func newCapturer() *Capturer {
	return &Capturer{
		Navigator:  Navigator{Timeout: time.Second},
		Screenshot: engine.ScreenshotOptions{Format: "png", FullPage: true},
		Now:        func() time.Time { return t0.Add(time.Hour) },
	}
}

// Redirect to the slash form while the network log only saw the bare host.
func TestRun_ScenarioA_TrailingSlash(t *testing.T) {
	b := &enginetest.Browser{
		FinalURL: "http://example.com/",
		Events: []models.ResponseRecord{{
			URL:          "http://example.com",
			Status:       200,
			Headers:      map[string]string{"content-type": "text/html"},
			ResourceType: models.ResourceTypeDocument,
			ObservedAt:   t0,
		}},
	}

	res, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeResolved, res.Headers.Outcome)
	assert.Equal(t, models.MatchTrailingSlash, res.Headers.Rule)
	assert.Equal(t, 200, res.Headers.Status)
	assert.Equal(t, "http://example.com", res.Artifacts.Headers.URL)
	assert.Equal(t, "http://example.com/", res.Page.FinalURL)
}

func TestRun_ScenarioB_ExactMatch(t *testing.T) {
	b := &enginetest.Browser{
		PageHTML: "<html><head><title> Example Domain </title></head><body>hi</body></html>",
		Events: []models.ResponseRecord{{
			URL:          "http://example.com",
			Status:       200,
			Headers:      map[string]string{"content-type": "text/html"},
			ResourceType: models.ResourceTypeDocument,
			ObservedAt:   t0,
		}},
	}

	res, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, models.MatchExact, res.Headers.Rule)
	assert.Equal(t, map[string]string{"content-type": "text/html"}, res.Artifacts.Headers.Headers)
	assert.Equal(t, "2024-05-01T12:00:00Z", res.Artifacts.Headers.Timestamp)
	assert.Equal(t, "Example Domain", res.Title)
	assert.Equal(t, 1, res.Responses)
	assert.Equal(t, b.PageHTML, string(res.Artifacts.HTML))
}

// Cached page: the event stream never fires.
func TestRun_ScenarioC_NoEvents(t *testing.T) {
	b := &enginetest.Browser{FinalURL: "http://example.com/"}

	res, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.NoError(t, err)

	assert.True(t, res.Headers.IsPlaceholder())
	assert.Equal(t, 0, res.Artifacts.Headers.Status)
	assert.NotEmpty(t, res.Artifacts.Headers.Note)
	assert.Equal(t, "http://example.com/", res.Artifacts.Headers.URL)
	assert.Equal(t, "2024-05-01T13:00:00Z", res.Artifacts.Headers.Timestamp)
	assert.NotEmpty(t, res.Artifacts.HTML)
	assert.NotEmpty(t, res.Artifacts.Screenshot)
}

func TestRun_NavigationTimeout(t *testing.T) {
	b := &enginetest.Browser{NavigateDelay: 5 * time.Second}
	c := newCapturer()
	c.Navigator.Timeout = 50 * time.Millisecond

	res, err := c.Run(context.Background(), b, "http://slow.example")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, models.IsCode(err, models.ErrCodeNavigationTimeout), "got %v", err)

	for _, call := range b.Calls() {
		assert.NotEqual(t, "HTML", call, "no extraction after a failed navigation")
		assert.NotEqual(t, "Screenshot", call, "no extraction after a failed navigation")
	}
	assert.Contains(t, b.Calls(), "Unsubscribe", "recorder must detach even on failure")
}

func TestRun_AttachFailureStopsBeforeNavigation(t *testing.T) {
	b := &enginetest.Browser{SubscribeErr: errors.New("websocket closed")}

	_, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeAttachFailed))
	assert.NotContains(t, b.Calls(), "Navigate")
}

func TestRun_RecorderAttachedBeforeNavigate(t *testing.T) {
	b := &enginetest.Browser{}

	_, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.NoError(t, err)

	calls := b.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "SubscribeResponses", calls[0])
	assert.Equal(t, "Navigate", calls[1])
}

func TestRun_LateRedirectEventCorrelated(t *testing.T) {
	b := &enginetest.Browser{
		FinalURL: "https://example.com/home",
		Events: []models.ResponseRecord{
			{URL: "https://example.com/", Status: 302, ResourceType: models.ResourceTypeDocument, ObservedAt: t0},
		},
		LateEvents: []models.ResponseRecord{
			{URL: "https://example.com/home", Status: 200, ResourceType: models.ResourceTypeDocument, ObservedAt: t0.Add(time.Second)},
		},
	}

	res, err := newCapturer().Run(context.Background(), b, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, models.MatchExact, res.Headers.Rule)
	assert.Equal(t, 200, res.Headers.Status)
}

func TestRun_ExtractionFailure(t *testing.T) {
	b := &enginetest.Browser{ScreenshotErr: errors.New("target closed")}

	res, err := newCapturer().Run(context.Background(), b, "http://example.com")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, models.IsCode(err, models.ErrCodeExtraction))
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "", pageTitle("<html><body>no title</body></html>"))
	assert.Equal(t, "first", pageTitle("<title>first</title><title>second</title>"))
}
