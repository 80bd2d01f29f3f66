package dashboard

// Static assets for the dashboard, embedded as strings.

// getStaticAsset returns a static asset by name.
// Returns the content, content type, and whether the asset was found.
func getStaticAsset(name string) (content string, contentType string, ok bool) {
	switch name {
	case "index.html":
		return indexHTML, "text/html; charset=utf-8", true
	case "style.css":
		return cssStyles, "text/css; charset=utf-8", true
	case "app.js":
		return jsApp, "application/javascript", true
	default:
		return "", "", false
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>X1-Pulse</title>
    <link rel="stylesheet" href="/static/style.css">
</head>
<body>
    <header>
        <h1>X1-Pulse</h1>
        <span id="live" class="badge badge-off">offline</span>
    </header>

    <main>
        <section class="cards">
            <div class="card"><h3>Fastest RPC</h3><p id="fastest">-</p></div>
            <div class="card"><h3>Slowest RPC</h3><p id="slowest">-</p></div>
            <div class="card"><h3>Consensus</h3><p id="consensus">-</p></div>
            <div class="card"><h3>Slot skew</h3><p id="skew">-</p></div>
            <div class="card"><h3>Average latency</h3><p id="average">-</p></div>
            <div class="card"><h3>Protocol</h3><p id="protocol">-</p></div>
        </section>

        <section class="boards">
            <div class="board">
                <h2>Latency leaderboard</h2>
                <table><thead><tr><th>#</th><th>RPC</th><th>Latency</th></tr></thead>
                <tbody id="latency-board"></tbody></table>
            </div>
            <div class="board">
                <h2>Slot leaderboard</h2>
                <table><thead><tr><th>#</th><th>RPC</th><th>Slot</th><th>Latency</th></tr></thead>
                <tbody id="slot-board"></tbody></table>
            </div>
        </section>

        <section>
            <h2>Recent observations</h2>
            <form id="filter">
                <input id="rpc" placeholder="RPC filter">
                <select id="window">
                    <option value="300">5 minutes</option>
                    <option value="900">15 minutes</option>
                    <option value="3600" selected>1 hour</option>
                </select>
                <button type="submit">Apply</button>
            </form>
            <table>
                <thead><tr><th>Time</th><th>RPC</th><th>Slot</th><th>Blockhash</th><th>Latency</th></tr></thead>
                <tbody id="observations"></tbody>
            </table>
        </section>
    </main>

    <script src="/static/app.js"></script>
</body>
</html>
`

const cssStyles = `
:root {
    --color-bg: #111827;
    --color-card: #1f2937;
    --color-border: #374151;
    --color-text: #f9fafb;
    --color-muted: #9ca3af;
    --color-ok: #10b981;
    --color-off: #ef4444;
}

body {
    margin: 0;
    font-family: system-ui, sans-serif;
    background: var(--color-bg);
    color: var(--color-text);
}

header {
    display: flex;
    align-items: center;
    justify-content: space-between;
    padding: 1rem 2rem;
    border-bottom: 1px solid var(--color-border);
}

main { padding: 1rem 2rem; }

.cards {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(180px, 1fr));
    gap: 1rem;
}

.card, .board {
    background: var(--color-card);
    border: 1px solid var(--color-border);
    border-radius: 0.5rem;
    padding: 0.75rem 1rem;
}

.card h3 { margin: 0; font-size: 0.8rem; color: var(--color-muted); }
.card p { margin: 0.25rem 0 0; font-size: 1.2rem; }

.boards {
    display: grid;
    grid-template-columns: 1fr 1fr;
    gap: 1rem;
    margin: 1rem 0;
}

table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: 0.3rem 0.5rem; border-bottom: 1px solid var(--color-border); }
td.hash { font-family: monospace; font-size: 0.8rem; }

.badge { padding: 0.2rem 0.6rem; border-radius: 999px; font-size: 0.8rem; }
.badge-ok { background: var(--color-ok); }
.badge-off { background: var(--color-off); }
`

const jsApp = `
(function () {
    'use strict';

    var etag = null;
    var query = { rpc: '', window: 3600 };

    function text(id, value) {
        document.getElementById(id).textContent = value;
    }

    function cell(row, value, cls) {
        var td = document.createElement('td');
        td.textContent = value;
        if (cls) { td.className = cls; }
        row.appendChild(td);
    }

    function renderStats(stats) {
        text('fastest', stats.fastest_rpc + ' (' + stats.fastest_latency + ' ms)');
        text('slowest', stats.slowest_rpc + ' (' + stats.slowest_latency + ' ms)');
        text('consensus', stats.consensus_percentage.toFixed(1) + '% at slot ' + stats.consensus_slot);
        text('skew', stats.slot_skew);
        text('average', stats.average_latency.toFixed(1) + ' ms over ' + stats.total_rpcs + ' RPCs');

        var latency = document.getElementById('latency-board');
        latency.replaceChildren();
        stats.latency_leaderboard.forEach(function (e, i) {
            var row = document.createElement('tr');
            cell(row, i + 1);
            cell(row, e.nickname);
            cell(row, e.value + ' ms');
            latency.appendChild(row);
        });

        var slots = document.getElementById('slot-board');
        slots.replaceChildren();
        stats.slot_leaderboard.forEach(function (e, i) {
            var row = document.createElement('tr');
            cell(row, i + 1);
            cell(row, e.nickname);
            cell(row, e.value);
            cell(row, e.latency_ms + ' ms');
            slots.appendChild(row);
        });
    }

    function renderObservations(observations) {
        var body = document.getElementById('observations');
        body.replaceChildren();
        observations.slice(0, 200).forEach(function (o) {
            var row = document.createElement('tr');
            cell(row, new Date(o.timestamp * 1000).toLocaleTimeString());
            cell(row, o.nickname);
            cell(row, o.slot);
            cell(row, o.blockhash, 'hash');
            cell(row, o.latency_ms + ' ms');
            body.appendChild(row);
        });
    }

    function load() {
        var params = new URLSearchParams();
        if (query.rpc) { params.set('rpc', query.rpc); }
        params.set('from', Math.floor(Date.now() / 1000) - query.window);

        var headers = {};
        if (etag) { headers['If-None-Match'] = etag; }

        fetch('/api/metrics?' + params.toString(), { headers: headers })
            .then(function (res) {
                if (res.status === 304 || !res.ok) { return null; }
                etag = res.headers.get('ETag');
                return res.json();
            })
            .then(function (data) {
                if (!data) { return; }
                renderObservations(data[0]);
                renderStats(data[1]);
            })
            .catch(function () {});

        fetch('/api/protocol-stats')
            .then(function (res) { return res.json(); })
            .then(function (s) {
                text('protocol', s.preferred_ratio.toFixed(1) + '% preferred of ' + s.completed);
            })
            .catch(function () {});
    }

    function connect() {
        var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        var ws = new WebSocket(scheme + location.host + '/api/ws');
        var badge = document.getElementById('live');

        ws.onopen = function () {
            badge.textContent = 'live';
            badge.className = 'badge badge-ok';
        };
        ws.onmessage = function (msg) {
            var event = JSON.parse(msg.data);
            if (event.type === 'cycle') {
                load();
            }
        };
        ws.onclose = function () {
            badge.textContent = 'offline';
            badge.className = 'badge badge-off';
            setTimeout(connect, 5000);
        };
    }

    document.getElementById('filter').addEventListener('submit', function (e) {
        e.preventDefault();
        query.rpc = document.getElementById('rpc').value.trim();
        query.window = parseInt(document.getElementById('window').value, 10);
        etag = null;
        load();
    });

    load();
    connect();
})();
`
