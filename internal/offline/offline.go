package offline

import "encoding/json"

// Fixed bodies served when both the network and the cache come up empty.
// The static text and the JSON shape are part of the client contract; the
// dashboard keys off `offline: true` to switch into degraded mode.

const staticUnavailableBody = "Resource unavailable offline"

type offlineDashboard struct {
	TotalPilots  int `json:"totalPilots"`
	Compliant    int `json:"compliant"`
	ExpiringSoon int `json:"expiringSoon"`
	Expired      int `json:"expired"`
}

type offlineAPIPayload struct {
	Pilots    []any            `json:"pilots"`
	Dashboard offlineDashboard `json:"dashboard"`
	Checks    []any            `json:"checks"`
	Message   string           `json:"message"`
	Offline   bool             `json:"offline"`
}

func offlineAPIBody() []byte {
	b, _ := json.Marshal(offlineAPIPayload{
		Pilots:  []any{},
		Checks:  []any{},
		Message: "You are offline. Live data is unavailable.",
		Offline: true,
	})
	return b
}

var placeholderImage = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="120" height="120" viewBox="0 0 120 120"><rect width="120" height="120" fill="#e2e8f0"/><circle cx="46" cy="44" r="7" fill="#94a3b8"/><path d="M38 74l14-18 10 12 8-9 12 15z" fill="#94a3b8"/></svg>`)

var offlinePage = []byte(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fleet Office - Offline</title>
<style>
  body { font-family: system-ui, sans-serif; background: #0f172a; color: #e2e8f0;
         display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
  main { text-align: center; padding: 2rem; }
  h1 { font-size: 1.5rem; margin-bottom: 0.5rem; }
  p { color: #94a3b8; margin-bottom: 1.5rem; }
  button { background: #38bdf8; color: #0f172a; border: 0; border-radius: 0.375rem;
           padding: 0.6rem 1.4rem; font-size: 1rem; cursor: pointer; }
</style>
</head>
<body>
<main>
  <h1>You are offline</h1>
  <p>Fleet Office could not reach the server. Cached certification data may be shown until the connection returns.</p>
  <button onclick="location.reload()">Try again</button>
</main>
</body>
</html>
`)
