package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/solwallet/service/wallet"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type pageData struct {
	Session wallet.View
	Notices []wallet.Notice
}

// handleSessionPage serves the wallet page: a connect button while
// disconnected, the transfer form once connected.
func handleSessionPage(renderer *TemplateRenderer, session SessionService, notices NoticeSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Session: session.View()}
		if notices != nil {
			data.Notices = notices.Drain()
		}
		if err := renderer.Render(w, "session.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	})
}
