package toloka

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var torrentPayload = []byte("d4:infod6:lengthi1e4:name4:test12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaaee")

const loginFormPage = `<html><body><form action="login.php" method="post">
<input name="username"><input name="password" type="password">
</form></body></html>`

const indexPage = `<html><body><a href="login.php?logout=true">Вихід</a></body></html>`

const searchPage = `<html><head><title>Толока :: Пошук</title></head><body>
<table class="forumline">
<tr class="prow1">
<td class="row1">Аніме</td>
<td class="row1"><a class="genmed" href="t681000"><b>Дандадан (Сезон 1) / Dan Da Dan (Season 1) (2024) WEBRip 1080p</b></a></td>
<td class="row1"><a href="download.php?id=681000">.torrent</a></td>
<td class="row1">uploader1</td>
<td class="row1">7.42 GB</td>
<td class="row1 seedmed"><b>12</b></td>
<td class="row1 leechmed"><b>2</b></td>
<td class="row1">2024-07-30</td>
</tr>
<tr class="prow2">
<td class="row2">Аніме</td>
<td class="row2"><a class="genmed" href="t681001"><b>Дан та Дан / Dandadan S01 (2024) BDRip</b></a></td>
<td class="row2"><a href="download.php?id=681001">.torrent</a></td>
<td class="row2">uploader2</td>
<td class="row2">9.80 GB</td>
<td class="row2 seedmed"><b>40</b></td>
<td class="row2 leechmed"><b>5</b></td>
<td class="row2">2024-08-02</td>
</tr>
</table>
</body></html>`

const topicPage = `<html><head><title>Дандадан</title></head><body>
<h1 class="maintitle"><a class="maintitle" href="t681000">Дандадан (Сезон 1) / Dan Da Dan (Season 1) (2024) WEBRip 1080p</a></h1>
<table class="forumline">
<tr><td class="genmed">Автор:</td><td class="genmed">uploader1</td></tr>
<tr><td class="genmed">Розмір:</td><td class="genmed">7.42 GB</td></tr>
<tr><td class="genmed">Зареєстрований:</td><td class="genmed">2024-07-30 10:15</td></tr>
<tr><td class="genmed">Сідів:</td><td class="genmed">12</td></tr>
</table>
<p><a href="download.php?id=681000" class="genmed">Завантажити</a></p>
</body></html>`

const missingTopicPage = `<html><body><h2>Помилка</h2><p>Теми не існує або її було видалено.</p></body></html>`

type fakeToloka struct {
	t   *testing.T
	srv *httptest.Server

	username string
	password string

	mu                sync.Mutex
	loginCalls        int
	downloadCalls     int
	lastQuery         string
	failFirstDownload bool
}

func newFakeToloka(t *testing.T) *fakeToloka {
	t.Helper()
	s := &fakeToloka{t: t, username: "user", password: "secret"}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeToloka) counters() (logins, downloads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls, s.downloadCalls
}

func (s *fakeToloka) query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// encodeWindows1251 converts a UTF-8 fixture to the tracker's page encoding.
func (s *fakeToloka) encodeWindows1251(page string) []byte {
	out, _, err := transform.Bytes(charmap.Windows1251.NewEncoder(), []byte(page))
	require.NoError(s.t, err)
	return out
}

func (s *fakeToloka) writePage(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=windows-1251")
	w.Write(s.encodeWindows1251(page))
}

func (s *fakeToloka) authed(r *http.Request) bool {
	c, err := r.Cookie("toloka_sid")
	return err == nil && c.Value == "ok"
}

func (s *fakeToloka) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/login.php" && r.Method == http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.loginCalls++
		s.mu.Unlock()
		if r.PostFormValue("username") == s.username && r.PostFormValue("password") == s.password {
			http.SetCookie(w, &http.Cookie{Name: "toloka_sid", Value: "ok", Path: "/"})
			http.Redirect(w, r, "/index.php", http.StatusFound)
			return
		}
		s.writePage(w, loginFormPage)

	case r.URL.Path == "/login.php":
		s.writePage(w, loginFormPage)

	case !s.authed(r):
		http.Redirect(w, r, "/login.php", http.StatusFound)

	case r.URL.Path == "/index.php":
		s.writePage(w, indexPage)

	case r.URL.Path == "/tracker.php":
		s.mu.Lock()
		s.lastQuery = r.URL.Query().Get("nm")
		s.mu.Unlock()
		s.writePage(w, searchPage)

	case r.URL.Path == "/t681000":
		s.writePage(w, topicPage)

	case strings.HasPrefix(r.URL.Path, "/t"):
		s.writePage(w, missingTopicPage)

	case r.URL.Path == "/download.php":
		s.mu.Lock()
		s.downloadCalls++
		failing := s.failFirstDownload && s.downloadCalls == 1
		s.mu.Unlock()
		if failing {
			// An expired session gets the login form instead of the file.
			s.writePage(w, loginFormPage)
			return
		}
		w.Header().Set("Content-Type", "application/x-bittorrent")
		w.Write(torrentPayload)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, s *fakeToloka) *Client {
	t.Helper()
	c, err := NewClient(s.srv.URL, s.username, s.password, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c := newTestClient(t, srv)

	require.NoError(t, c.Login(context.Background()))
	logins, _ := srv.counters()
	require.Equal(t, 1, logins)
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c, err := NewClient(srv.srv.URL, "user", "wrong", 5*time.Second)
	require.NoError(t, err)

	err = c.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestSearchParsesAndRanksResults(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c := newTestClient(t, srv)

	releases, err := c.Search(context.Background(), "Dan Da Dan")
	require.NoError(t, err)
	require.Len(t, releases, 2)
	require.Equal(t, "Dan Da Dan", srv.query())

	// The title containing the query outranks the higher-seeded fuzzy match.
	first := releases[0]
	require.Equal(t, "t681000", first.GUID)
	require.Equal(t, "Дандадан (Сезон 1) / Dan Da Dan (Season 1) (2024) WEBRip 1080p", first.Title)
	require.Equal(t, 12, first.Seeders)
	require.Equal(t, "7.42 GB", first.Size)
	require.Equal(t, "2024-07-30", first.PublishDate)
	require.Equal(t, srv.srv.URL+"/download.php?id=681000", first.DownloadURL)

	require.Equal(t, "t681001", releases[1].GUID)
	require.Equal(t, 40, releases[1].Seeders)
}

func TestGetReleaseParsesTopicPage(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c := newTestClient(t, srv)

	rel, err := c.GetRelease(context.Background(), "t681000")
	require.NoError(t, err)
	require.Equal(t, "t681000", rel.GUID)
	require.Equal(t, "Дандадан (Сезон 1) / Dan Da Dan (Season 1) (2024) WEBRip 1080p", rel.Title)
	require.Equal(t, "uploader1", rel.Author)
	require.Equal(t, "7.42 GB", rel.Size)
	require.Equal(t, "2024-07-30 10:15", rel.PublishDate)
	require.Equal(t, 12, rel.Seeders)
	require.Equal(t, srv.srv.URL+"/download.php?id=681000", rel.DownloadURL)
}

func TestGetReleaseNotFound(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c := newTestClient(t, srv)

	_, err := c.GetRelease(context.Background(), "t999999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadCachesPayload(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	c := newTestClient(t, srv)

	rel := &Release{GUID: "t681000", DownloadURL: srv.srv.URL + "/download.php?id=681000"}

	data, err := c.Download(context.Background(), rel)
	require.NoError(t, err)
	require.Equal(t, torrentPayload, data)

	again, err := c.Download(context.Background(), rel)
	require.NoError(t, err)
	require.Equal(t, torrentPayload, again)
	_, downloads := srv.counters()
	require.Equal(t, 1, downloads, "second download must come from the cache")
}

func TestDownloadRecoversFromExpiredSession(t *testing.T) {
	t.Parallel()

	srv := newFakeToloka(t)
	srv.failFirstDownload = true
	c := newTestClient(t, srv)

	rel := &Release{GUID: "t681000", DownloadURL: srv.srv.URL + "/download.php?id=681000"}

	data, err := c.Download(context.Background(), rel)
	require.NoError(t, err)
	require.Equal(t, torrentPayload, data)
	logins, downloads := srv.counters()
	require.Equal(t, 2, downloads)
	require.GreaterOrEqual(t, logins, 2, "the html payload must force a fresh login")
}

func TestRankReleasesOrdering(t *testing.T) {
	t.Parallel()

	releases := []Release{
		{Title: "Something Else", Seeders: 100},
		{Title: "My Show complete", Seeders: 1},
		{Title: "My Show", Seeders: 50},
	}
	rankReleases("My Show", releases)

	require.Equal(t, "My Show", releases[0].Title)
	require.Equal(t, "My Show complete", releases[1].Title)
	require.Equal(t, "Something Else", releases[2].Title)
}

func TestRankReleasesSeederTieBreak(t *testing.T) {
	t.Parallel()

	// Same fuzzy distance from the query, only seeders differ.
	releases := []Release{
		{Title: "My Show S01 480p", Seeders: 3},
		{Title: "My Show S01 720p", Seeders: 30},
	}
	rankReleases("My Show S01", releases)

	require.Equal(t, 30, releases[0].Seeders, "equal matches order by seeders")
}

func TestErrorsWrapSentinels(t *testing.T) {
	t.Parallel()

	err := errors.Wrapf(ErrNotFound, "topic %s", "t1")
	require.ErrorIs(t, err, ErrNotFound)
}
