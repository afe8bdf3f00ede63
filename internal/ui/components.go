package ui

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

// UploadLimits describes the limits shown on the upload page.
type UploadLimits struct {
	MaxBytesPerFile int64
	MaxFiles        int
}

// writeAll writes each string in order, stopping at the first error.
func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<!DOCTYPE html><html lang=\"en\">",
			"<head><meta charset=\"utf-8\">",
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">",
			"<title>", html.EscapeString(title), "</title>",
			// Minimal modern CSS framework (Pico.css) via CDN.
			"<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">",
			"</head>",
			"<body><main class=\"container\">",
		)
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		return writeAll(w, "</main></body></html>")
	})
}

// uploadScript posts the chosen file to /upload and shows the returned URL
// or error message.
const uploadScript = `<script>
document.getElementById("upload-form").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const out = document.getElementById("upload-result");
  out.textContent = "Uploading...";
  try {
    const resp = await fetch("/upload", { method: "POST", body: new FormData(ev.target) });
    const body = await resp.json();
    if (resp.ok) {
      out.innerHTML = "";
      const link = document.createElement("a");
      link.href = body.fileUrl;
      link.textContent = body.fileUrl;
      out.appendChild(link);
    } else {
      out.textContent = body.error;
    }
  } catch (err) {
    out.textContent = "Upload failed: " + err;
  }
});
</script>`

// UploadPage renders the upload form.
func UploadPage(limits UploadLimits) templ.Component {
	return Layout("Stash - Upload", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hint := fmt.Sprintf("<p>Files up to %s.", html.EscapeString(humanize.IBytes(uint64(limits.MaxBytesPerFile))))
		if limits.MaxFiles > 1 {
			hint += fmt.Sprintf(" At most %d files per request.", limits.MaxFiles)
		}
		hint += "</p>"

		return writeAll(w,
			"<section><header><h1>Stash</h1>", hint, "</header>",
			"<form id=\"upload-form\" method=\"post\" action=\"/upload\" enctype=\"multipart/form-data\">",
			"<input type=\"file\" name=\"file\" required>",
			"<button type=\"submit\">Upload</button>",
			"</form>",
			"<p id=\"upload-result\" aria-live=\"polite\"></p>",
			"</section>",
			uploadScript,
		)
	}))
}
