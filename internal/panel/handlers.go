package panel

import (
	"fmt"
	"net/http"

	"github.com/rendis/unitconsole/internal/diagram"
	"github.com/rendis/unitconsole/internal/i18n"
)

// handleDiagram renders the session's pipeline. Query params:
//
//	format  ascii (default), mermaid or png
//	lang    language tag; falls back to Accept-Language
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Console.Session(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	cat := i18n.New(lang)
	model := diagram.Build(sess.View(), cat)

	w.Header().Set("Content-Language", cat.Language().String())
	switch format := r.URL.Query().Get("format"); format {
	case "", "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(diagram.RenderASCII(model)))
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(diagram.RenderMermaid(model)))
	case "png":
		img, imgErr := diagram.RenderImage(r.Context(), model)
		if imgErr != nil {
			s.deps.Logger.Error("diagram render failed", "session_id", sess.ID(), "error", imgErr)
			writeError(w, http.StatusInternalServerError, "image render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("format must be ascii, mermaid or png, got %q", format))
	}
}
