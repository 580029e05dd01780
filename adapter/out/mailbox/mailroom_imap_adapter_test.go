package mailbox

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tags removed",
			in:   `<p>Segue nossa <b>proposta</b> comercial.</p>`,
			want: "Segue nossa proposta comercial.",
		},
		{
			name: "block closings become newlines",
			in:   `<div>Item 1: R$ 10,00</div><div>Item 2: R$ 20,00</div>`,
			want: "Item 1: R$ 10,00\nItem 2: R$ 20,00",
		},
		{
			name: "script and style dropped entirely",
			in:   `<style>p{color:red}</style><script>alert(1)</script><p>Total: R$ 50,00</p>`,
			want: "Total: R$ 50,00",
		},
		{
			name: "entities decoded",
			in:   `Cota&ccedil;&atilde;o &amp; frete &lt;incluso&gt;`,
			want: "Cotação & frete <incluso>",
		},
		{
			name: "blank runs collapsed",
			in:   "<p>a</p>\n\n\n\n<p>b</p>",
			want: "a\n\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripHTMLKeepsTableRows(t *testing.T) {
	in := `<table><tr><td>Parafuso M8</td><td>R$ 0,45</td></tr><tr><td>Arruela</td><td>R$ 0,10</td></tr></table>`
	got := StripHTML(in)

	if !strings.Contains(got, "Parafuso M8") || !strings.Contains(got, "Arruela") {
		t.Fatalf("table cells lost: %q", got)
	}
	if strings.Index(got, "R$ 0,45") > strings.Index(got, "Arruela") {
		t.Errorf("row order not preserved: %q", got)
	}
}

func TestIsPDFAttachment(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"proposta.pdf", "application/pdf", true},
		{"PROPOSTA.PDF", "application/octet-stream", true},
		{"cotacao.pdf", "", true},
		{"planilha.xlsx", "application/vnd.ms-excel", false},
		{"", "application/pdf; name=proposta.pdf", true},
		{"logo.png", "image/png", false},
	}

	for _, tt := range tests {
		if got := isPDFAttachment(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("isPDFAttachment(%q, %q) = %v, want %v", tt.filename, tt.contentType, got, tt.want)
		}
	}
}
