//go:build integration

package rodbrowser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpadsrunner/internal/core/domain"
)

const formPage = `<html><body>
<select id="org-select"><option value="101">A</option><option value="102">B</option></select>
<input id="Username"><a class="btn btn-default" href="/file">latest</a>
<iframe src="/frame"></iframe>
</body></html>`

const framePage = `<html><body><select id="param"><option value="0">no</option><option value="1">yes</option></select></body></html>`

func newPortal(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, formPage) })
	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, framePage) })
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="extract.txt"`)
		fmt.Fprint(w, "a^b^c\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBrowser_Primitives(t *testing.T) {
	ctx := context.Background()
	srv := newPortal(t)

	b, err := Launch(ctx, Options{Headless: true, DownloadDir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()

	timeout := 10 * time.Second
	nav := b.Navigate(ctx, srv.URL+"/", timeout)
	require.Equal(t, domain.NavLoaded, nav.Status, nav.Reason)

	require.NoError(t, b.WaitFor(ctx, `select[id="org-select"]`, timeout))
	require.NoError(t, b.Select(ctx, `select[id="org-select"]`, "102", timeout))
	v, err := b.Value(ctx, `select[id="org-select"]`)
	require.NoError(t, err)
	assert.Equal(t, "102", v)

	require.NoError(t, b.Type(ctx, "#Username", "user", timeout))
	href, err := b.Property(ctx, `a[class="btn btn-default"]`, "href", timeout)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/file", href)

	err = b.WaitFor(ctx, "#missing", 500*time.Millisecond)
	assert.Equal(t, domain.KindSelectorTimeout, domain.KindOf(err))

	frame, err := b.Frame(ctx, "iframe", timeout)
	require.NoError(t, err)
	require.NoError(t, frame.Select(ctx, "#param", "1", timeout))
	has, err := b.Has(ctx, "#param")
	require.NoError(t, err)
	assert.False(t, has, "frame content is not visible from the top-level page")

	download := b.Navigate(ctx, href, timeout)
	assert.Equal(t, domain.NavAborted, download.Status)
}
