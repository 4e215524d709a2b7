package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Test Article</title></head>
<body>
<article>
<h1>Test Article</h1>
<p>Go is a statically typed language designed at Google. It is known for
simplicity and a strong standard library, and is widely used for servers.</p>
<p>This paragraph exists so the extractor has enough body text to treat the
page as a readable article rather than boilerplate.</p>
</article>
<script>console.log("noise")</script>
</body></html>`

func TestFetchExtractsArticle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer ts.Close()

	tool := New()
	result, err := tool.Execute(context.Background(), "scrape_url",
		json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("tool error: %s", result.Error)
	}
	if !strings.Contains(result.Content, "statically typed language") {
		t.Errorf("content = %q", result.Content)
	}
	if strings.Contains(result.Content, "console.log") {
		t.Error("script content leaked into extraction")
	}
}

func TestFetchHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	tool := New()
	result, err := tool.Execute(context.Background(), "scrape_url",
		json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Error, "HTTP 404") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestFetchTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("word ", 5000)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><article><p>%s</p></article></body></html>", long)
	}))
	defer ts.Close()

	tool := New()
	result, err := tool.Execute(context.Background(), "scrape_url",
		json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(result.Content, "... (truncated)") {
		t.Error("long content must be truncated")
	}
	if len(result.Content) > maxContentChars+100 {
		t.Errorf("content length = %d", len(result.Content))
	}
}

func TestIsPDF(t *testing.T) {
	if !isPDF("application/pdf", nil) {
		t.Error("content type must flag PDF")
	}
	if !isPDF("text/html", []byte("%PDF-1.7 etc")) {
		t.Error("magic bytes must flag PDF")
	}
	if isPDF("text/html", []byte("<html>")) {
		t.Error("HTML misdetected as PDF")
	}
}

func TestFetchBrokenPDF(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7 this is not really a pdf")
	}))
	defer ts.Close()

	tool := New()
	result, err := tool.Execute(context.Background(), "scrape_url",
		json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error == "" {
		t.Error("unparseable PDF must surface a tool error")
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><style>p{color:red}</style></head><body><p>Hello &amp; welcome</p><script>x()</script></body></html>`
	got := stripHTML(in)
	if !strings.Contains(got, "Hello & welcome") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "color:red") || strings.Contains(got, "x()") {
		t.Errorf("style/script leaked: %q", got)
	}
}
