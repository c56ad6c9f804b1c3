package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Clinical Reference RAG</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8fafc; color: #0f172a; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #ffffff; border: 1px solid #e2e8f0; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
  .subtitle { color: #475569; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  pre { background: #f1f5f9; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  code, .endpoint { font-family: "SF Mono", Menlo, monospace; }
  .endpoint { color: #0369a1; text-decoration: none; }
  .note { color: #b91c1c; font-size: 0.85rem; }
</style>
</head>
<body>
<div class="card">
  <h1>Clinical Reference RAG</h1>
  <p class="subtitle">Answers grounded in an indexed medical reference, with page citations.</p>

  <div class="section">
    <div class="section-title">Analyze symptoms</div>
    <pre><code>curl -X POST /analyze -d '{"symptoms": ["fever", "stiff neck"]}'</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><a href="/analyze" class="endpoint">/analyze</a> &mdash; POST symptoms, get a cited answer</p>
    <p><a href="/mcp" class="endpoint">/mcp</a> &mdash; MCP Streamable HTTP</p>
    <p><a href="/health" class="endpoint">/health</a> &mdash; Health check</p>
  </div>

  <p class="note">For reference lookup only. Not a substitute for professional medical advice.</p>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
