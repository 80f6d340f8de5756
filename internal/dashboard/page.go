package dashboard

import "net/http"

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Cart Dashboard</title>
<style>
  :root {
    --bg: #0d1117;
    --surface: #161b22;
    --border: #30363d;
    --text: #e6edf3;
    --text-dim: #8b949e;
    --accent: #58a6ff;
    --green: #3fb950;
    --red: #f85149;
  }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
    background: var(--bg);
    color: var(--text);
    font-size: 14px;
    line-height: 1.5;
    padding: 16px;
  }
  header {
    display: flex;
    align-items: center;
    justify-content: space-between;
    margin-bottom: 16px;
    padding-bottom: 12px;
    border-bottom: 1px solid var(--border);
  }
  header h1 { font-size: 20px; font-weight: 600; }
  header h1 span { color: var(--accent); }
  .meta { font-size: 12px; color: var(--text-dim); }
  .meta .live { color: var(--green); }
  .card {
    background: var(--surface);
    border: 1px solid var(--border);
    border-radius: 8px;
    overflow: hidden;
  }
  .card-header {
    padding: 10px 14px;
    font-weight: 600;
    border-bottom: 1px solid var(--border);
    display: flex;
    justify-content: space-between;
  }
  .count { color: var(--text-dim); font-weight: 400; }
  table { width: 100%; border-collapse: collapse; }
  th, td { padding: 8px 14px; text-align: left; border-bottom: 1px solid var(--border); }
  th { color: var(--text-dim); font-weight: 500; font-size: 12px; }
  td.num { text-align: right; font-variant-numeric: tabular-nums; }
  td img { width: 32px; height: 32px; object-fit: cover; border-radius: 4px; }
  .neg { color: var(--red); }
  .empty { padding: 24px; text-align: center; color: var(--text-dim); }
  .btn {
    background: transparent;
    color: var(--text);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 2px 10px;
    cursor: pointer;
  }
  .btn:hover { border-color: var(--accent); }
  footer { margin-top: 12px; display: flex; gap: 24px; }
  select {
    background: var(--surface);
    color: var(--text);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 2px 6px;
  }
</style>
</head>
<body>
<header>
  <h1>&#128722; <span>cartd</span> <span class="meta" id="namespace"></span></h1>
  <div class="meta">
    <label>Refresh:
      <select id="interval" onchange="setInterval_()">
        <option value="0">Live</option>
        <option value="2000">2s</option>
        <option value="5000" selected>5s</option>
      </select>
    </label>
    Revision <span id="revision">-</span> &middot; Updated: <span id="updated" class="live">-</span>
  </div>
</header>

<div class="card">
  <div class="card-header">Cart <span class="count" id="items-count">0</span></div>
  <div id="cart"></div>
</div>
<footer class="meta">
  <span>Units: <strong id="quantity">0</strong></span>
  <span>Subtotal: <strong id="subtotal">0.00</strong></span>
</footer>

<script>
let timer = null;
let events = null;

function cell(row, text, cls) {
  const td = row.insertCell();
  if (cls) td.className = cls;
  if (text != null) td.textContent = text;
  return td;
}

function button(label, id, op) {
  const b = document.createElement('button');
  b.className = 'btn';
  b.textContent = label;
  b.dataset.id = id;
  b.dataset.op = op;
  b.addEventListener('click', () => change(b.dataset.id, b.dataset.op));
  return b;
}

function render(snap) {
  const products = snap.products || [];
  document.getElementById('namespace').textContent = '@' + snap.namespace;
  document.getElementById('revision').textContent = snap.revision;
  document.getElementById('updated').textContent = new Date().toLocaleTimeString();
  document.getElementById('items-count').textContent = products.length;
  document.getElementById('quantity').textContent = snap.total_quantity;
  document.getElementById('subtotal').textContent = Number(snap.subtotal).toFixed(2);

  const el = document.getElementById('cart');
  el.replaceChildren();
  if (products.length === 0) {
    const empty = document.createElement('div');
    empty.className = 'empty';
    empty.textContent = 'Cart is empty';
    el.appendChild(empty);
    return;
  }
  const table = document.createElement('table');
  const head = table.insertRow();
  for (const h of ['', 'Product', 'Price', 'Qty', '']) {
    const th = document.createElement('th');
    th.textContent = h;
    head.appendChild(th);
  }
  for (const p of products) {
    const row = table.insertRow();
    const img = cell(row);
    if (p.image_url) {
      const i = document.createElement('img');
      i.src = p.image_url;
      i.alt = '';
      img.appendChild(i);
    }
    cell(row, p.title || p.id);
    cell(row, Number(p.price).toFixed(2), 'num');
    cell(row, p.quantity, p.quantity < 0 ? 'num neg' : 'num');
    const ops = cell(row);
    ops.append(button('\u2212', p.id, 'decrement'), ' ', button('+', p.id, 'increment'));
  }
  el.appendChild(table);
}

async function fetchCart() {
  try {
    const resp = await fetch('/api/cart');
    if (!resp.ok) return;
    render(await resp.json());
  } catch (e) {
    document.getElementById('updated').textContent = 'offline';
  }
}

async function change(id, op) {
  const resp = await fetch('/api/cart/items/' + encodeURIComponent(id) + '/' + op, { method: 'POST' });
  if (resp.ok) render(await resp.json());
}

function setInterval_() {
  const ms = parseInt(document.getElementById('interval').value);
  if (timer) { clearInterval(timer); timer = null; }
  if (events) { events.close(); events = null; }
  if (ms === 0 && window.EventSource) {
    events = new EventSource('/api/cart/events');
    events.addEventListener('cart', e => render(JSON.parse(e.data)));
    return;
  }
  timer = setInterval(fetchCart, ms || 5000);
}

fetchCart();
setInterval_();
</script>
</body>
</html>
`
