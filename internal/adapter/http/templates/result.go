// Package templates renders the HTML pages served alongside the JSON API.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/bnema/peakclips/internal/domain"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:0;padding:2rem;background:#111;color:#eee}
h1{font-size:1.4rem}.status{opacity:.8}.clips{display:flex;flex-wrap:wrap;gap:1rem}
.clip{width:240px}.clip video{width:240px;aspect-ratio:9/16;background:#000;border-radius:8px}
.clip p{margin:.4rem 0;font-size:.9rem}a{color:#8cf}`

// Result renders a job's status page. Finished jobs list every clip with an
// inline player; pending jobs follow the event stream and reload when done.
func Result(job *domain.Job) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		writeHead(&b, "Clips")

		b.WriteString(`<h1>Highlights</h1>`)
		fmt.Fprintf(&b, `<p class="status" id="status">%s</p>`, templ.EscapeString(statusText(job)))

		if job.Status == domain.JobStatusDone {
			b.WriteString(`<div class="clips">`)
			for _, clip := range job.Clips {
				src := templ.EscapeString(string(templ.URL(clip.URL)))
				fmt.Fprintf(&b, `<div class="clip"><video controls preload="metadata" playsinline src="%s"></video>`, src)
				fmt.Fprintf(&b, `<p>%s &middot; from %s &middot; <a href="%s" download>download</a></p></div>`,
					templ.EscapeString(clip.Name),
					templ.EscapeString(domain.FormatDuration(clip.StartSeconds)),
					src,
				)
			}
			b.WriteString(`</div>`)
		}

		if !job.Status.IsTerminal() {
			fmt.Fprintf(&b, `<script>
const es = new EventSource(%q);
es.addEventListener("status", (e) => {
  const ev = JSON.parse(e.data);
  if (ev.status === "done" || ev.status === "error") { es.close(); location.reload(); return; }
  const p = ev.progress ? " (clip " + ev.progress.clip + " of " + ev.progress.total + ")" : "";
  document.getElementById("status").textContent = ev.status + p;
});
</script>`, "/events/"+templ.EscapeString(job.ID))
		}

		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// NotFound renders the page for an unknown job id.
func NotFound() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		writeHead(&b, "Not found")
		b.WriteString(`<h1>Job not found</h1><p class="status">It may have expired.</p></body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeHead(b *strings.Builder, title string) {
	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	fmt.Fprintf(b, `<title>%s</title><style>%s</style></head><body>`, templ.EscapeString(title), pageStyle)
}

func statusText(job *domain.Job) string {
	switch job.Status {
	case domain.JobStatusStarting:
		return "Queued"
	case domain.JobStatusProcessing:
		if job.Progress != nil {
			return fmt.Sprintf("Processing clip %d of %d", job.Progress.Clip, job.Progress.Total)
		}
		return "Finding the best moments"
	case domain.JobStatusDone:
		return fmt.Sprintf("%d clips ready", len(job.Clips))
	default:
		if job.Reason != "" {
			return "Failed: " + strings.ReplaceAll(string(job.Reason), "_", " ")
		}
		return "Failed"
	}
}
