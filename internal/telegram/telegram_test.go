package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/sources"
)

var longLine = strings.Repeat("x", 130)

var previewHTML = `<html><body>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message">
    <div class="tgme_widget_message_text">صواريخ على حيفا<br/>Second line of the post</div>
    <a class="tgme_widget_message_date" href="https://t.me/chan/101"><time datetime="2026-03-01T11:55:00+00:00">11:55</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message">
    <div class="tgme_widget_message_forwarded_from_name">Resistance News</div>
    <a class="tgme_widget_message_date" href="https://t.me/chan/102"><time datetime="2026-03-01T11:56:00+00:00">11:56</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message">
    <div class="tgme_widget_message_photo_wrap"></div>
    <a class="tgme_widget_message_date" href="https://t.me/chan/103"><time datetime="2026-03-01T11:57:00+00:00">11:57</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message">
    <div class="tgme_widget_message_text">Old message</div>
    <a class="tgme_widget_message_date" href="https://t.me/chan/90"><time datetime="2026-03-01T08:00:00+00:00">08:00</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message">
    <div class="tgme_widget_message_text">` + longLine + `</div>
    <a class="tgme_widget_message_date" href="https://t.me/chan/104"></a>
  </div>
</div>
</body></html>`

func TestFetchChannel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(previewHTML))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 30*time.Minute)
	f.baseURL = srv.URL + "/s/"
	f.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	e := sources.Entry{Region: "proxies", Source: sources.Source{Name: "Chan", Type: sources.TypeTelegram, Channel: "@chan"}}
	articles, err := f.FetchChannel(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "/s/chan", gotPath)
	require.Len(t, articles, 3)

	first := articles[0]
	assert.Equal(t, news.ArticleID("https://t.me/chan/101"), first.ID)
	assert.Equal(t, "صواريخ على حيفا", first.TitleOriginal)
	assert.Equal(t, "صواريخ على حيفا Second line of the post", first.ContentOriginal)
	assert.Equal(t, "2026-03-01T11:55:00+00:00", first.Published)
	assert.Equal(t, news.CategoryProxy, first.SourceCategory)
	assert.Equal(t, "ar", first.Language)

	assert.Equal(t, "[Forwarded from Resistance News]", articles[1].TitleOriginal)

	long := articles[2]
	assert.Equal(t, 120, len([]rune(long.TitleOriginal)))
	assert.True(t, strings.HasSuffix(long.TitleOriginal, "..."))
	assert.Equal(t, "2026-03-01T12:00:00Z", long.Published)
}

func TestFetchAll_ChannelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), time.Hour)
	f.baseURL = srv.URL + "/s/"

	out := f.FetchAll(context.Background(), []sources.Entry{{Region: "iran", Source: sources.Source{Type: sources.TypeTelegram, Channel: "gone"}}})
	assert.Empty(t, out)
}
