package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/dustin/go-humanize"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>APK Auto Update Server</title></head>
<body>
<h3>APK Auto Update Server</h3>
<p>versionCode: {{.VersionCode}}</p>
<p>filename: {{.Filename}}</p>
{{- if .Size}}
<p>size: {{.Size}}</p>
{{- end}}
{{- if .UpdatedAt}}
<p>updatedAt: {{.UpdatedAt}}</p>
{{- end}}
{{- if .SHA256}}
<p>sha256: <code>{{.SHA256}}</code></p>
{{- end}}
<p><a href="/update.json">View update.json</a></p>
</body>
</html>
`))

type indexView struct {
	VersionCode int64
	Filename    string
	Size        string
	UpdatedAt   string
	SHA256      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	current, info, err := s.service.CurrentArtifact(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	view := indexView{
		VersionCode: current.VersionCode,
		Filename:    "none",
		UpdatedAt:   current.UpdatedAtOrEmpty(),
		SHA256:      current.SHA256OrEmpty(),
	}
	if current.Published() {
		view.Filename = current.FilenameOrEmpty()
	}
	if info.Name != "" {
		view.Size = humanize.IBytes(uint64(info.Size))
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, view); err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
