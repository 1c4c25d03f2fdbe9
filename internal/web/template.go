package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/caresync/internal/status"
)

const stamp = "2006-01-02T15:04:05Z"

// view is the template's input: the snapshot plus values the template
// cannot derive itself.
type view struct {
	status.Snapshot
	Up      string
	Started string
}

// humanUptime renders d as "1d 2h 3m 4s", omitting leading zero units.
func humanUptime(d time.Duration) string {
	total := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{total / 86400, "d"},
		{total / 3600 % 24, "h"},
		{total / 60 % 60, "m"},
		{total % 60, "s"},
	}
	var out []string
	for i, p := range parts {
		if len(out) == 0 && p.n == 0 && i < len(parts)-1 {
			continue
		}
		out = append(out, fmt.Sprintf("%d%s", p.n, p.unit))
	}
	return strings.Join(out, " ")
}

func render(w io.Writer, snap status.Snapshot) error {
	v := view{
		Snapshot: snap,
		Up:       humanUptime(snap.Uptime()),
		Started:  snap.StartTime.UTC().Format(stamp),
	}
	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "page", v); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

var pageTmpl = template.Must(template.New("caresync").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"when":  func(t time.Time) string { return t.UTC().Format(stamp) },
	"dash": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
}).Parse(layout))

const layout = `
{{define "feedback"}}
<section>
<h2>Feedback</h2>
<table>
<tr><th>Last event</th><td>{{with .LastEvent}}<span class="{{lower .Color}}">{{.Label}}</span> at {{when .At}}{{else}}none{{end}}</td></tr>
<tr><th>Flashing</th><td{{if .Busy}} class="busy"{{end}}>{{if .Busy}}yes{{else}}no{{end}}</td></tr>
{{range .SortedCounts}}<tr><th>{{.Label}}</th><td>{{.Count}}</td></tr>
{{end}}</table>
</section>
{{end}}

{{define "drops"}}
<section>
<h2>Dropped</h2>
<table>
<tr><th>Busy</th><td>{{.Drops.Busy}}</td></tr>
<tr><th>Queue full</th><td>{{.Drops.QueueFull}}</td></tr>
<tr><th>Malformed</th><td>{{.Drops.Malformed}}</td></tr>
</table>
</section>
{{end}}

{{define "links"}}
<section>
<h2>Links</h2>
<table>
<tr><th>Peer</th><td>{{dash .Config.Peer}}</td></tr>
<tr><th>Sink</th><td>{{dash .Config.Sink}}</td></tr>
<tr><th>Heartbeat</th><td>{{with .Heartbeat}}{{if .Err}}<span class="down">{{.Err}}</span>{{else}}{{.Status}}{{end}} at {{when .At}}{{else}}none{{end}}</td></tr>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}<span class="up">connected</span>{{else}}<span class="down">disconnected</span>{{end}} via {{dash .Config.Broker}}</td></tr>
{{with .Network}}<tr><th>Network</th><td>{{.Status}} ({{.Type}}{{with .SSID}}, {{.}}{{end}}) {{.IP}}</td></tr>{{end}}
</table>
</section>
{{end}}

{{define "node"}}
<section>
<h2>Node</h2>
<table>
<tr><th>Up</th><td>{{.Up}} since {{.Started}}</td></tr>
{{with .Config.DebounceMode}}<tr><th>Debounce</th><td>{{.}} {{$.Config.DebounceMs}}ms</td></tr>{{end}}
{{with .Config.QueueCapacity}}<tr><th>Queue capacity</th><td>{{.}}</td></tr>{{end}}
<tr><th>Heartbeat every</th><td>{{.Config.HeartbeatMs}}ms</td></tr>
<tr><th>Status address</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>
</section>
{{end}}

{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>CareSync {{.Config.Role}}</title>
<style>
body { font: 14px/1.4 monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; }
section table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; border-bottom: 1px solid #e4e4e4; }
th { width: 38%; font-weight: normal; color: #555; }
.red { color: red; } .yellow { color: goldenrod; } .green { color: green; }
.blue { color: blue; } .cyan { color: darkcyan; }
.up { color: green; } .down { color: red; } .busy { color: orange; }
</style>
</head>
<body>
<h1>CareSync {{.Config.Role}}: {{.Config.DeviceID}}</h1>
{{template "feedback" .}}
{{template "drops" .}}
{{template "links" .}}
{{template "node" .}}
<footer><a href="/index.json">json</a> | <a href="/metrics">metrics</a></footer>
</body>
</html>
{{end}}
`
