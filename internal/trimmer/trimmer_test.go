package trimmer

import (
	"strings"
	"testing"
	"time"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    []string
		wantNot []string
	}{
		{
			name: "strips script and style",
			html: `<html><head><script>var x=1;</script><style>.a{color:red}</style></head>
				<body><p>Happy Hour 4pm-7pm</p></body></html>`,
			want:    []string{"Happy Hour 4pm-7pm"},
			wantNot: []string{"var x=1", "color:red"},
		},
		{
			name: "strips header footer nav",
			html: `<body><header>Site Header</header><nav>Home | Menu</nav>
				<p>Two dollar drafts</p><footer>Footer text</footer></body>`,
			want:    []string{"Two dollar drafts"},
			wantNot: []string{"Site Header", "Home | Menu", "Footer text"},
		},
		{
			name:    "strips display none",
			html:    `<body><div style="display: none">hidden promo</div><p>visible promo</p></body>`,
			want:    []string{"visible promo"},
			wantNot: []string{"hidden promo"},
		},
		{
			name:    "strips visibility hidden",
			html:    `<body><span style="visibility:hidden">secret</span><p>public</p></body>`,
			want:    []string{"public"},
			wantNot: []string{"secret"},
		},
		{
			name: "title prefixed on own line",
			html: `<html><head><title>Paul Stewart's Tavern</title></head><body><p>Drinks</p></body></html>`,
			want: []string{"[Page Title: Paul Stewart's Tavern]\n", "Drinks"},
		},
		{
			name: "list items keep line breaks",
			html: `<body><ul><li>$2 off drafts</li><li>$5 wells</li></ul></body>`,
			want: []string{"$2 off drafts\n", "$5 wells"},
		},
		{
			name: "whitespace collapsed within lines",
			html: `<body><p>happy     hour
				daily</p></body>`,
			want:    []string{"happy hour daily"},
			wantNot: []string{"  "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractText(tt.html)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in:\n%s", w, got)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(got, w) {
					t.Errorf("should not contain %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestExtractTextDeterministic(t *testing.T) {
	html := `<html><head><title>T</title></head><body><p>a</p><div>b</div></body></html>`
	first := ExtractText(html)
	for i := 0; i < 5; i++ {
		if got := ExtractText(html); got != first {
			t.Fatal("extraction not deterministic")
		}
	}
}

func TestTrimVenueCapsPageText(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)

	big := strings.Repeat("beer special ", 5000)
	doc := models.MergedDocument{
		VenueID:   "v1",
		VenueName: "Tavern",
		ScrapedAt: time.Now().UTC().Format(time.RFC3339),
		Pages:     []models.MergedPage{{URL: "https://t.example.com", HTML: "<body><p>" + big + "</p></body>"}},
	}
	if err := root.WriteJSONAtomic(root.MergedPath("v1"), &doc); err != nil {
		t.Fatal(err)
	}

	tr := New(root, 1024, logging.Nop())
	if err := tr.TrimVenue("v1"); err != nil {
		t.Fatalf("TrimVenue: %v", err)
	}

	var out models.TrimmedDocument
	if err := paths.ReadJSON(root.TrimmedPath("v1"), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Pages) != 1 {
		t.Fatalf("pages = %d", len(out.Pages))
	}
	if len(out.Pages[0].Text) > 1024 {
		t.Errorf("page text = %d bytes, cap 1024", len(out.Pages[0].Text))
	}
	if out.Pages[0].URL != "https://t.example.com" {
		t.Errorf("url lost: %q", out.Pages[0].URL)
	}
}

func TestTrimPreservesDocumentFields(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)
	area := "Downtown Charleston"
	site := "https://t.example.com"

	doc := models.MergedDocument{
		VenueID:   "v1",
		VenueName: "Tavern",
		VenueArea: &area,
		Website:   &site,
		ScrapedAt: "2026-01-20T03:00:00Z",
		Pages:     []models.MergedPage{{URL: site, HTML: "<body>hi there folks</body>", Hash: "abc", DownloadedAt: "2026-01-20T02:00:00Z"}},
	}
	if err := root.WriteJSONAtomic(root.MergedPath("v1"), &doc); err != nil {
		t.Fatal(err)
	}

	tr := New(root, 0, logging.Nop())
	if err := tr.TrimVenue("v1"); err != nil {
		t.Fatal(err)
	}

	var out models.TrimmedDocument
	if err := paths.ReadJSON(root.TrimmedPath("v1"), &out); err != nil {
		t.Fatal(err)
	}
	if out.VenueArea == nil || *out.VenueArea != area {
		t.Error("venueArea lost")
	}
	if out.ScrapedAt != doc.ScrapedAt {
		t.Error("scrapedAt changed")
	}
	if out.Pages[0].Hash != "abc" || out.Pages[0].DownloadedAt != "2026-01-20T02:00:00Z" {
		t.Error("page metadata lost")
	}
}
