package httpserver

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>meteretl analytics</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: right; }
th { background: #f4f4f4; }
</style>
</head>
<body>
<h1>Meter readings analytics</h1>
<form id="q">
  <label>Reference date <input name="reference_date" type="date" value="2021-01-01"></label>
  <label>Start <input name="start" value="2021-01-01T00:00:00Z"></label>
  <label>End <input name="end" value="2021-01-02T00:00:00Z"></label>
  <label>Meterpoint <input name="meterpoint"></label>
  <button data-view="active">Active agreements</button>
  <button data-view="halfhourly">Half-hourly</button>
  <button data-view="daily">Daily by product</button>
  <button data-view="history">Meterpoint history</button>
</form>
<div id="out"></div>
<script>
const urls = {
  active: f => "/api/active-agreements?reference_date=" + encodeURIComponent(f.reference_date.value),
  halfhourly: f => "/api/halfhourly?start=" + encodeURIComponent(f.start.value) + "&end=" + encodeURIComponent(f.end.value),
  daily: f => "/api/daily-product?start=" + encodeURIComponent(f.start.value) + "&end=" + encodeURIComponent(f.end.value),
  history: f => "/api/meterpoints/" + encodeURIComponent(f.meterpoint.value) + "/agreements",
};
function render(rows) {
  if (!rows || rows.length === 0) return "<p>No rows.</p>";
  const cols = Object.keys(rows[0]);
  const head = "<tr>" + cols.map(c => "<th>" + c + "</th>").join("") + "</tr>";
  const body = rows.map(r => "<tr>" + cols.map(c => "<td>" + (r[c] ?? "") + "</td>").join("") + "</tr>").join("");
  return "<table>" + head + body + "</table>";
}
document.querySelectorAll("button").forEach(b => b.addEventListener("click", async ev => {
  ev.preventDefault();
  const out = document.getElementById("out");
  const res = await fetch(urls[b.dataset.view](document.getElementById("q")));
  const body = await res.json();
  out.innerHTML = res.ok ? render(body.agreements || body.rows) : "<p>" + body.code + ": " + body.message + "</p>";
}));
</script>
</body>
</html>
`
