package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	mu          sync.Mutex
	navigations []string
	submitted   []string
	replies     []string
	replyIdx    int
	waitErr     error
	submitErr   error
	navErr      error
	closed      bool
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	return f.navErr
}

func (f *fakePage) Submit(_ context.Context, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("page closed")
	}
	f.submitted = append(f.submitted, prompt)
	f.replyIdx = 0
	return f.submitErr
}

func (f *fakePage) WaitForReply(context.Context, time.Duration) error {
	return f.waitErr
}

func (f *fakePage) LastReply(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return "", nil
	}
	i := f.replyIdx
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.replyIdx++
	return f.replies[i], nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestBrowserSession(page *fakePage, rotateAfterTokens int) *BrowserSession {
	poller, _ := instantPoller()
	return NewBrowserSession(BrowserOptions{
		ChatURL:           "https://chat.example.com/",
		RotateAfterTokens: rotateAfterTokens,
		Poller:            poller,
	}, func(context.Context) (ChatPage, error) {
		return page, nil
	}, zerolog.New(os.Stdout).Level(zerolog.Disabled))
}

func TestBrowserSession_NotOpen(t *testing.T) {
	s := newTestBrowserSession(&fakePage{}, 8000)

	_, err := s.SendAndAwait(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.Rotate(context.Background()), ErrNotOpen)
	assert.False(t, s.State().Open)
	assert.Equal(t, KindBrowser, s.Kind())
}

func TestBrowserSession_SendAndAwait(t *testing.T) {
	page := &fakePage{replies: []string{"Thin", "Thinking", "Done.", "Done.", "Done.", "Done."}}
	s := newTestBrowserSession(page, 8000)
	require.NoError(t, s.Open(context.Background()))

	reply, err := s.SendAndAwait(context.Background(), "analyse")
	require.NoError(t, err)
	assert.Equal(t, "Done.", reply)
	assert.Equal(t, []string{"analyse"}, page.submitted)
	assert.Equal(t, []string{"https://chat.example.com/"}, page.navigations)

	st := s.State()
	assert.True(t, st.Open)
	assert.Equal(t, 1, st.MessageCount)
	assert.Equal(t, 16, st.RotationThreshold)
}

func TestBrowserSession_ReplyNeverStarts(t *testing.T) {
	page := &fakePage{waitErr: errors.New("timeout")}
	s := newTestBrowserSession(page, 8000)
	require.NoError(t, s.Open(context.Background()))

	reply, err := s.SendAndAwait(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Equal(t, 1, s.State().MessageCount)
}

func TestBrowserSession_SubmitFailure(t *testing.T) {
	page := &fakePage{submitErr: errors.New("no textarea")}
	s := newTestBrowserSession(page, 8000)
	require.NoError(t, s.Open(context.Background()))

	_, err := s.SendAndAwait(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit prompt")
	assert.Equal(t, 0, s.State().MessageCount)
}

func TestBrowserSession_Rotation(t *testing.T) {
	page := &fakePage{replies: []string{"ok"}}
	s := newTestBrowserSession(page, 1000)
	require.NoError(t, s.Open(context.Background()))

	threshold := s.State().RotationThreshold
	require.Equal(t, 8, threshold)

	for i := 0; i < threshold-1; i++ {
		_, err := s.SendAndAwait(context.Background(), "p")
		require.NoError(t, err)
		assert.False(t, s.ShouldRotate())
		assert.Less(t, s.State().MessageCount, threshold)
	}

	_, err := s.SendAndAwait(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, s.ShouldRotate())

	require.NoError(t, s.Rotate(context.Background()))
	assert.Equal(t, 0, s.State().MessageCount)
	assert.False(t, s.ShouldRotate())
	assert.Len(t, page.navigations, 2)
}

func TestBrowserSession_RotateNavigationFailure(t *testing.T) {
	page := &fakePage{replies: []string{"ok"}}
	s := newTestBrowserSession(page, 1000)
	require.NoError(t, s.Open(context.Background()))
	_, err := s.SendAndAwait(context.Background(), "p")
	require.NoError(t, err)

	page.navErr = errors.New("net::ERR")
	assert.Error(t, s.Rotate(context.Background()))
	assert.Equal(t, 0, s.State().MessageCount)
}

func TestBrowserSession_OpenFailures(t *testing.T) {
	t.Run("opener error", func(t *testing.T) {
		s := NewBrowserSession(BrowserOptions{ChatURL: "https://chat.example.com/"},
			func(context.Context) (ChatPage, error) { return nil, errors.New("no chrome") },
			zerolog.New(os.Stdout).Level(zerolog.Disabled))

		err := s.Open(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no chrome")
		assert.False(t, s.State().Open)
	})

	t.Run("navigation error closes page", func(t *testing.T) {
		page := &fakePage{navErr: errors.New("dns")}
		s := newTestBrowserSession(page, 8000)

		assert.Error(t, s.Open(context.Background()))
		assert.True(t, page.closed)
		assert.False(t, s.State().Open)
	})
}

func TestBrowserSession_Close(t *testing.T) {
	page := &fakePage{replies: []string{"ok"}}
	s := newTestBrowserSession(page, 8000)
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Close())
	assert.True(t, page.closed)
	assert.False(t, s.State().Open)

	_, err := s.SendAndAwait(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNotOpen)

	// Closing twice is fine.
	assert.NoError(t, s.Close())
}
