package console

import (
	"html/template"
	"net/url"
)

var funcs = template.FuncMap{
	"pathEscape": url.PathEscape,
}

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>keydeck · login</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0b0d12;--surface:#13161e;--surface2:#1b1f2a;--border:#2a3040;
  --text:#e3e6ef;--text2:#8a93aa;--text3:#566079;
  --accent:#14b8a6;--accent-light:#2dd4bf;--accent-dim:#0f766e;
  --danger:#ef4444;--success:#22c55e;--warn:#f59e0b;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh;display:flex;align-items:center;justify-content:center}
.login-card{background:var(--surface);border:1px solid var(--border);border-radius:12px;padding:48px 40px;max-width:400px;width:100%;text-align:center}
.logo{font-family:var(--mono);font-size:1.5rem;font-weight:700;letter-spacing:-0.5px;margin-bottom:8px}
.logo span{color:var(--accent-light)}
.subtitle{color:var(--text2);font-size:0.85rem;margin-bottom:32px}
input[type=password]{
  width:100%;padding:14px 16px;background:var(--bg);border:1px solid var(--border);
  border-radius:8px;color:var(--text);font-family:var(--mono);font-size:1rem;
  outline:none;transition:border-color 0.2s;
}
input[type=password]:focus{border-color:var(--accent)}
button{
  width:100%;padding:12px;margin-top:16px;background:var(--accent);color:#fff;
  border:none;border-radius:8px;font-size:0.9rem;font-weight:600;cursor:pointer;
  transition:background 0.2s;
}
button:hover{background:var(--accent-dim)}
.error{color:var(--danger);font-size:0.82rem;margin-top:12px}
.footer{margin-top:32px;color:var(--text3);font-size:0.72rem}
</style>
</head>
<body>
<div class="login-card">
  <div class="logo">key<span>deck</span></div>
  <div class="subtitle">Key rotation console</div>
  <form method="POST" action="/login" autocomplete="off">
    <input type="password" name="password" placeholder="Admin password" autofocus required>
    <button type="submit">Sign in</button>
  </form>
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <p class="footer">Backend &middot; {{.Backend}}</p>
</div>
</body>
</html>`))

const layoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>keydeck · {{.Active}}</title>
<script src="https://unpkg.com/htmx.org@2.0.4" integrity="sha384-HGfztofotfshcF7+8n44JQL2oJmowVChPTg48S+jvZoztPfvwD79OC/LTtG6dMp+" crossorigin="anonymous"></script>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0b0d12;--surface:#13161e;--surface2:#1b1f2a;--border:#2a3040;
  --text:#e3e6ef;--text2:#8a93aa;--text3:#566079;
  --accent:#14b8a6;--accent-light:#2dd4bf;--accent-dim:#0f766e;
  --danger:#ef4444;--success:#22c55e;--warn:#f59e0b;--info:#38bdf8;--secondary:#64748b;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh}

/* Nav */
nav{background:var(--surface);border-bottom:1px solid var(--border);padding:0 24px;display:flex;align-items:center;height:52px;position:sticky;top:0;z-index:100}
nav .logo{font-family:var(--mono);font-size:1.1rem;font-weight:700;letter-spacing:-0.5px;margin-right:32px;text-decoration:none;color:var(--text)}
nav .logo span{color:var(--accent-light)}
#nav-links{display:flex}
nav a{color:var(--text2);text-decoration:none;font-size:0.82rem;padding:16px 12px;transition:color 0.2s;border-bottom:2px solid transparent}
nav a:hover{color:var(--text)}
nav a.active{color:var(--accent-light);border-bottom-color:var(--accent-light)}
nav .spacer{flex:1}
nav form{margin-left:12px}

/* Main */
main{max-width:1100px;margin:0 auto;padding:32px 24px}
h1{font-size:1.4rem;font-weight:600;margin-bottom:8px}
.page-head{display:flex;align-items:center;justify-content:space-between;margin-bottom:24px}

/* Stats */
.stats{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin-bottom:32px}
.stats.three{grid-template-columns:repeat(3,1fr)}
.stat{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px}
.stat .label{color:var(--text3);font-size:0.72rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:6px}
.stat .value{font-family:var(--mono);font-size:1.8rem;font-weight:700}

/* Card */
.card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px;margin-bottom:20px}
.card h2{font-size:0.95rem;font-weight:600;margin-bottom:16px}
.grid2{display:grid;grid-template-columns:1fr 1fr;gap:20px}
.chart-img{width:100%;height:auto;background:#fff;border-radius:6px}

/* Table */
table{width:100%;border-collapse:collapse;font-size:0.82rem}
th{text-align:left;color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;padding:8px 12px;border-bottom:1px solid var(--border)}
td{padding:10px 12px;border-bottom:1px solid var(--border);color:var(--text2);font-family:var(--mono);font-size:0.78rem}
tr:hover td{background:var(--surface2)}
td.center{text-align:center;color:var(--text3)}

/* Badges */
.badge{padding:3px 8px;border-radius:4px;font-size:0.7rem;font-weight:600}
.badge-success{background:#22c55e20;color:var(--success)}
.badge-danger{background:#ef444420;color:var(--danger)}
.badge-warning{background:#f59e0b20;color:var(--warn)}
.badge-secondary{background:var(--surface2);color:var(--secondary)}
.badge-info{background:#38bdf820;color:var(--info)}

/* Buttons */
.btn{display:inline-block;padding:6px 14px;background:var(--surface2);color:var(--text2);border:1px solid var(--border);border-radius:6px;font-size:0.78rem;cursor:pointer;text-decoration:none;transition:all 0.2s}
.btn:hover{background:var(--accent-dim);color:#fff;border-color:var(--accent)}
.btn-primary{background:var(--accent);color:#fff;border-color:var(--accent)}
.btn-danger:hover{background:var(--danger);border-color:var(--danger)}
.btn-sm{padding:3px 8px;font-size:0.7rem}

/* Forms */
.form-group{margin-bottom:14px}
.form-group label{display:block;color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:4px}
input[type=text],input[type=password],textarea,select{width:100%;padding:8px 12px;background:var(--bg);border:1px solid var(--border);border-radius:6px;color:var(--text);font-family:var(--mono);font-size:0.82rem;outline:none}
input:focus,textarea:focus,select:focus{border-color:var(--accent)}
.form-actions{display:flex;gap:8px;justify-content:flex-end;margin-top:16px}

/* Modal */
dialog{background:var(--surface);color:var(--text);border:1px solid var(--border);border-radius:12px;padding:24px;width:460px;max-width:90vw;margin:auto}
dialog::backdrop{background:rgba(0,0,0,0.5)}
dialog h3{font-size:1rem;margin-bottom:16px}

/* Chat */
.chat-layout{display:grid;grid-template-columns:260px 1fr;gap:20px}
#chat-container{height:420px;overflow-y:auto;padding:12px;background:var(--bg);border:1px solid var(--border);border-radius:8px;margin-bottom:12px}
.bubble{max-width:80%;padding:10px 14px;border-radius:10px;margin-bottom:10px;font-size:0.85rem;white-space:pre-wrap;word-break:break-word}
.bubble.user{background:var(--accent-dim);margin-left:auto}
.bubble.assistant{background:var(--surface2)}
.bubble.error{background:#ef444420;color:var(--danger)}
.bubble.pending{background:var(--surface2);color:var(--text3);font-style:italic}
.bubble .time{font-size:0.65rem;color:var(--text3);margin-top:4px}
.history-item{padding:10px;border-bottom:1px solid var(--border);cursor:pointer}
.history-item:hover{background:var(--surface2)}
.history-item .meta{color:var(--text3);font-size:0.7rem}
.chat-form{display:flex;gap:8px}

/* Toasts */
#toasts{position:fixed;right:20px;bottom:20px;z-index:300;display:flex;flex-direction:column;gap:8px}
.toast{padding:10px 16px;border-radius:8px;font-size:0.82rem;background:var(--surface2);border-left:3px solid var(--accent);min-width:240px}
.toast-success{border-left-color:var(--success)}
.toast-danger{border-left-color:var(--danger)}
.toast-warning{border-left-color:var(--warn)}
.toast-info{border-left-color:var(--info)}

.empty{color:var(--text3);text-align:center;padding:40px 0;font-size:0.85rem}
.inline-error{color:var(--danger);text-align:center;padding:20px 0;font-size:0.82rem}
.loading{color:var(--text3);text-align:center;padding:20px 0;font-size:0.82rem}
</style>
</head>
<body>
<nav>
  <a href="/console/dashboard" class="logo">key<span>deck</span></a>
  ` + navLinks + `
  <div class="spacer"></div>
  <span id="service-status" hx-get="/console/status" hx-trigger="load, every 30s"><span class="badge badge-secondary">Checking...</span></span>
  <button class="btn btn-sm" hx-post="/console/refresh" hx-target="#page" hx-swap="outerHTML">Refresh</button>
  <form method="POST" action="/logout"><button class="btn btn-sm" type="submit">Logout</button></form>
</nav>
<main>`

const navLinks = `<div id="nav-links"{{if .OOB}} hx-swap-oob="true"{{end}}>
  {{range .Nav}}<a href="/console/{{.Page}}" hx-get="/console/page/{{.Page}}" hx-target="#page" hx-swap="outerHTML" hx-push-url="/console/{{.Page}}"{{if .Active}} class="active"{{end}}>{{.Title}}</a>
  {{end}}</div>`

const layoutFoot = `</main>

<dialog id="modal"><div id="modal-body"></div></dialog>
<div id="toasts"></div>

<script>
var toastMillis = {{.Settings.ToastMillis}};
function showToast(message, level) {
  var t = document.createElement('div');
  t.className = 'toast toast-' + (level || 'info');
  t.textContent = message;
  document.getElementById('toasts').appendChild(t);
  setTimeout(function() { t.remove(); }, toastMillis);
}
document.body.addEventListener('toast', function(e) {
  showToast(e.detail.message, e.detail.level);
});
document.body.addEventListener('closeModal', function() {
  document.getElementById('modal').close();
});
document.body.addEventListener('htmx:afterSwap', function(e) {
  if (e.detail.target.id === 'modal-body') {
    document.getElementById('modal').showModal();
  }
  if (e.detail.target.id === 'chat-container') {
    e.detail.target.scrollTop = e.detail.target.scrollHeight;
  }
});
document.body.addEventListener('htmx:sendError', function() {
  showToast('Connection to console lost', 'danger');
});
</script>
</body>
</html>`

// pages holds one skeleton per page. Each renders loader placeholders that
// fetch their data with hx-trigger="load".
const pages = `{{define "page"}}<div id="page" data-page="{{.Active}}">
{{if eq .Active "dashboard"}}{{template "dashboard" .}}
{{else if eq .Active "keys"}}{{template "keys" .}}
{{else if eq .Active "models"}}{{template "models" .}}
{{else if eq .Active "stats"}}{{template "stats" .}}
{{else if eq .Active "chat"}}{{template "chat" .}}
{{end}}</div>{{end}}

{{define "dashboard"}}
<h1>Dashboard</h1>
<div id="dashboard-data" hx-get="/console/dashboard/data" hx-trigger="load">
  <div class="loading">Loading...</div>
</div>
{{end}}

{{define "keys"}}
<div class="page-head">
  <h1>API keys</h1>
  <button class="btn btn-primary" hx-get="/console/keys/new" hx-target="#modal-body">Add key</button>
</div>
<div class="card">
<table>
  <thead><tr><th>ID</th><th>Name</th><th>Key</th><th>Status</th><th>Usage</th><th>Last used</th><th>Actions</th></tr></thead>
  <tbody id="key-rows" hx-get="/console/keys/rows" hx-trigger="load, reload-keys from:body">
    <tr><td colspan="{{.KeyColumns}}" class="center">Loading...</td></tr>
  </tbody>
</table>
</div>
{{end}}

{{define "models"}}
<div class="page-head">
  <h1>Models</h1>
  <div>
    <button class="btn" hx-post="/console/models/refresh" hx-swap="none">Refresh from upstream</button>
    <button class="btn btn-primary" hx-get="/console/models/new" hx-target="#modal-body">Add model</button>
  </div>
</div>
<div class="card">
<table>
  <thead><tr><th>ID</th><th>Name</th><th>Description</th><th>Created</th><th>Updated</th><th>Actions</th></tr></thead>
  <tbody id="model-rows" hx-get="/console/models/rows" hx-trigger="load, reload-models from:body">
    <tr><td colspan="{{.ModelColumns}}" class="center">Loading...</td></tr>
  </tbody>
</table>
</div>
{{end}}

{{define "stats"}}
<div class="page-head">
  <h1>Statistics</h1>
  <select name="period" style="width:160px" hx-get="/console/stats/data" hx-target="#stats-data" hx-trigger="change">
    {{range .Periods}}<option value="{{.}}">{{.}}</option>{{end}}
  </select>
</div>
<div id="stats-data" hx-get="/console/stats/data?period=all" hx-trigger="load">
  <div class="loading">Loading...</div>
</div>
{{end}}

{{define "chat"}}
<h1>Chat tester</h1>
<div hx-get="/console/chat/data" hx-trigger="load" hx-target="#chat-side"></div>
<div class="chat-layout">
  <div class="card">
    <h2>History</h2>
    <div id="chat-history" hx-get="/console/chat/history" hx-trigger="reload-history from:body">
      <div class="loading">Loading...</div>
    </div>
  </div>
  <div class="card">
    <form class="chat-form" hx-post="/console/chat" hx-target="#chat-container" hx-swap="beforeend" hx-on::after-request="if(event.detail.successful &amp;&amp; event.detail.xhr.responseText) this.querySelector('[name=message]').value=''">
      <div id="chat-side" style="width:220px" hx-get="/console/chat/models" hx-include="[name=model]" hx-trigger="reload-chat-models from:body"><select name="model"><option value="">Loading...</option></select></div>
      <input type="text" name="message" placeholder="Type a message" autocomplete="off">
      <button class="btn btn-primary" type="submit">Send</button>
    </form>
    <div style="margin:8px 0;display:flex;gap:8px">
      <button class="btn btn-sm" hx-post="/console/chat/models/refresh" hx-include="[name=model]" hx-target="#chat-side">Refresh models</button>
      <button class="btn btn-sm" hx-post="/console/chat/clear" hx-target="#chat-container">Clear</button>
    </div>
    <div id="chat-container">{{range .Transcript}}{{template "bubble" .}}{{end}}</div>
  </div>
</div>
{{end}}`

// partials are shared by the page and fragment templates.
const partials = `{{define "chart"}}{{if .Err}}<div class="inline-error">Chart failed: {{.Err}}</div>{{else if .Empty}}<div class="empty">No data</div>{{else}}<img class="chart-img" src="/console/charts/{{.Name}}?v={{.Version}}" alt="{{.Name}}">{{end}}{{end}}

{{define "bubble"}}<div class="bubble {{.Role}}" id="b-{{.ID}}"{{if eq .Role "pending"}} hx-post="/console/chat/reply" hx-vals='{"id":"{{.ID}}"}' hx-trigger="load" hx-swap="outerHTML"{{end}}>
  <div>{{.Content}}</div>{{if .Time}}<div class="time">{{.Time}}</div>{{end}}
</div>{{end}}

{{define "model-select"}}{{if .Err}}<select name="model"><option value="">Load failed</option></select>
{{else if not .Models}}<select name="model"><option value="">No models available</option></select>
{{else}}<select name="model">{{range .Models}}<option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>{{end}}</select>{{end}}{{end}}

{{define "history"}}{{if .Err}}<div class="inline-error">{{.Err}}</div>
{{else if not .Items}}<div class="empty">No chat history yet</div>
{{else}}{{range .Items}}<div class="history-item" hx-get="/console/chat/history/{{.ID}}" hx-target="#chat-container">
  <strong>{{.Model}}</strong> <span class="badge badge-info">{{.Tokens}} tokens</span>
  <div class="meta">{{.Time}}</div>
  {{if .Preview}}<div class="meta">{{.Preview}}</div>{{end}}
</div>{{end}}{{end}}{{end}}`

var pageTmpl = template.Must(template.New("layout").Funcs(funcs).Parse(layoutHead + `{{template "page" .}}` + layoutFoot + pages + partials))

var fragmentTmpl = template.Must(template.New("fragment").Funcs(funcs).Parse(`{{template "page" .}}
` + navLinks + pages + partials))

var dashboardDataTmpl = template.Must(template.New("dashboard-data").Funcs(funcs).Parse(`{{with .V}}{{if .Err}}<div class="inline-error">{{.Err}}</div>{{else}}
<div class="stats">
  <div class="stat"><div class="label">Total keys</div><div class="value" id="total-keys">{{.TotalKeys}}</div></div>
  <div class="stat"><div class="label">Active keys</div><div class="value" id="active-keys">{{.ActiveKeys}}</div></div>
  <div class="stat"><div class="label">Models</div><div class="value" id="total-models">{{.TotalModels}}</div></div>
  <div class="stat"><div class="label">Total requests</div><div class="value" id="total-requests">{{.TotalRequests}}</div></div>
</div>
<div class="grid2">
  <div class="card"><h2>Model usage</h2>{{template "chart" .ModelChart}}</div>
  <div class="card"><h2>Key usage</h2>{{template "chart" .KeyChart}}</div>
</div>
<div class="card">
  <h2>Recent requests <span class="badge badge-info">today: {{.DailyRequests}} requests, {{.DailyTokens}} tokens</span></h2>
  <table>
    <thead><tr><th>Time</th><th>Model</th><th>Key</th><th>Tokens</th><th>Status</th></tr></thead>
    <tbody id="recent-rows">
    {{range .Recent}}<tr><td>{{.Time}}</td><td>{{.Model}}</td><td>{{.KeyID}}</td><td>{{.Tokens}}</td><td>{{if .OK}}<span class="badge badge-success">ok</span>{{else}}<span class="badge badge-danger">failed</span>{{end}}</td></tr>
    {{else}}<tr><td colspan="{{$.Cols}}" class="center">No requests yet</td></tr>
    {{end}}</tbody>
  </table>
</div>{{end}}{{end}}` + partials))

var keyRowsTmpl = template.Must(template.New("key-rows").Parse(`{{if .V.Err}}<tr><td colspan="{{.Cols}}" class="center inline-error">{{.V.Err}}</td></tr>
{{else}}{{range .V.Rows}}<tr>
  <td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Masked}}</td>
  <td><span class="badge badge-{{.StatusColor}}">{{.Status}}</span></td>
  <td>{{.UsageCount}}</td><td>{{.LastUsed}}</td>
  <td>
    <button class="btn btn-sm" hx-post="/console/keys/{{.ID}}/test" hx-swap="none">Test</button>
    <button class="btn btn-sm" hx-get="/console/keys/{{.ID}}/edit" hx-target="#modal-body">Edit</button>
    <button class="btn btn-sm btn-danger" hx-delete="/console/keys/{{.ID}}" hx-vals='{"confirm":"yes"}' hx-confirm="Delete key {{.Name}}?" hx-swap="none">Delete</button>
  </td>
</tr>
{{else}}<tr><td colspan="{{$.Cols}}" class="center">No keys yet</td></tr>
{{end}}{{end}}`))

var modelRowsTmpl = template.Must(template.New("model-rows").Funcs(funcs).Parse(`{{if .V.Err}}<tr><td colspan="{{.Cols}}" class="center inline-error">{{.V.Err}}</td></tr>
{{else}}{{range .V.Rows}}<tr>
  <td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Description}}</td><td>{{.Created}}</td><td>{{.Updated}}</td>
  <td>
    <button class="btn btn-sm" hx-get="/console/models/{{pathEscape .Name}}/edit" hx-target="#modal-body">Edit</button>
    <button class="btn btn-sm btn-danger" hx-delete="/console/models/{{pathEscape .Name}}" hx-vals='{"confirm":"yes"}' hx-confirm="Delete model {{.Name}}?" hx-swap="none">Delete</button>
  </td>
</tr>
{{else}}<tr><td colspan="{{$.Cols}}" class="center">No models yet</td></tr>
{{end}}{{end}}`))

var statsTmpl = template.Must(template.New("stats").Funcs(funcs).Parse(`{{with .V.Usage}}{{if .Err}}<div class="inline-error">{{.Err}}</div>{{else}}
<div class="stats three">
  <div class="stat"><div class="label">Total usage</div><div class="value">{{.TotalUsage}}</div></div>
  <div class="stat"><div class="label">Total tokens</div><div class="value">{{.TotalTokens}}</div></div>
  <div class="stat"><div class="label">Total requests</div><div class="value">{{.TotalRequests}}</div></div>
</div>
<div class="grid2">
  <div class="card"><h2>Models ({{.Period}})</h2>{{template "chart" .ModelChart}}
    <table><thead><tr><th>Model</th><th>Usage</th><th>Tokens</th><th>Requests</th></tr></thead><tbody>
    {{range .Models}}<tr><td>{{.Name}}</td><td>{{.Usage}}</td><td>{{.Tokens}}</td><td>{{.Requests}}</td></tr>{{else}}<tr><td colspan="4" class="center">No data</td></tr>{{end}}
    </tbody></table>
  </div>
  <div class="card"><h2>Keys ({{.Period}})</h2>{{template "chart" .KeyChart}}
    <table><thead><tr><th>Key</th><th>Usage</th><th>Tokens</th><th>Requests</th></tr></thead><tbody>
    {{range .Keys}}<tr><td>{{.Name}}</td><td>{{.Usage}}</td><td>{{.Tokens}}</td><td>{{.Requests}}</td></tr>{{else}}<tr><td colspan="4" class="center">No data</td></tr>{{end}}
    </tbody></table>
  </div>
</div>{{end}}{{end}}
{{with .V.Hourly}}<div class="card"><h2>Hourly usage</h2>{{if .Err}}<div class="inline-error">{{.Err}}</div>{{else}}{{template "chart" .Chart}}{{end}}</div>{{end}}` + partials))

var chatDataTmpl = template.Must(template.New("chat-data").Funcs(funcs).Parse(`{{template "model-select" .V.Models}}
<div id="chat-history" hx-get="/console/chat/history" hx-trigger="reload-history from:body" hx-swap-oob="true">{{template "history" .V.History}}</div>` + partials))

var chatModelsTmpl = template.Must(template.New("chat-models").Funcs(funcs).Parse(`{{template "model-select" .}}` + partials))

var chatHistoryTmpl = template.Must(template.New("chat-history").Funcs(funcs).Parse(`{{template "history" .}}` + partials))

var transcriptTmpl = template.Must(template.New("transcript").Funcs(funcs).Parse(`{{if .Err}}<div class="inline-error">{{.Err}}</div>{{else}}{{range .Bubbles}}{{template "bubble" .}}{{end}}{{end}}` + partials))

var bubblesTmpl = template.Must(template.New("bubbles").Funcs(funcs).Parse(`{{range .}}{{template "bubble" .}}{{end}}` + partials))

var keyFormTmpl = template.Must(template.New("key-form").Parse(`<h3>{{if .Edit}}Edit key{{else}}Add key{{end}}</h3>
<form {{if .Edit}}hx-put="/console/keys/{{.F.ID}}"{{else}}hx-post="/console/keys"{{end}} hx-swap="none">
  <div class="form-group"><label>Name</label><input type="text" name="name" value="{{.F.Name}}"></div>
  <div class="form-group"><label>Key value</label><input type="text" name="key_value" value="{{.F.Value}}"></div>
  <div class="form-group"><label>Status</label><select name="status">
    {{range .Statuses}}<option value="{{.}}"{{if eq . $.F.Status}} selected{{end}}>{{.}}</option>{{end}}
  </select></div>
  <div class="form-actions">
    <button type="button" class="btn" onclick="document.getElementById('modal').close()">Cancel</button>
    <button type="submit" class="btn btn-primary">Save</button>
  </div>
</form>`))

var modelFormTmpl = template.Must(template.New("model-form").Funcs(funcs).Parse(`<h3>{{if .Edit}}Edit model{{else}}Add model{{end}}</h3>
<form {{if .Edit}}hx-put="/console/models/{{pathEscape .F.Name}}"{{else}}hx-post="/console/models"{{end}} hx-swap="none">
  <div class="form-group"><label>Model name</label><input type="text" name="model_name" value="{{.F.Name}}"{{if .Edit}} readonly{{end}}></div>
  <div class="form-group"><label>Description</label><textarea name="description" rows="3">{{.F.Description}}</textarea></div>
  <div class="form-group"><label>Capabilities</label><input type="text" name="capabilities" value="{{.F.Capabilities}}"></div>
  <div class="form-actions">
    <button type="button" class="btn" onclick="document.getElementById('modal').close()">Cancel</button>
    <button type="submit" class="btn btn-primary">Save</button>
  </div>
</form>`))

var statusTmpl = template.Must(template.New("status").Parse(`<span class="badge badge-{{.Color}}">{{.Text}}</span>`))
