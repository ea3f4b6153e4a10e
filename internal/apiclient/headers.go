package apiclient

import (
	"fmt"
	"net/http"

	"voyagebot/internal/pacing"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2_1 like Mac OS X) AppleWebKit/605.1.15 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 Chrome/121.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36",
}

var chromeVersions = []string{"120", "121", "122", "123", "144"}

// setBrowserHeaders fills h with a browser-like header set for one request.
// Accept-Encoding is left to the transport so gzip stays transparent.
func setBrowserHeaders(h http.Header, rng *pacing.Rand, token, origin string) {
	v := chromeVersions[rng.Intn(len(chromeVersions))]

	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9,id;q=0.8")
	h.Set("Authorization", "Bearer "+token)
	h.Set("Origin", origin)
	h.Set("Referer", origin+"/")
	h.Set("Sec-Ch-Ua", fmt.Sprintf(`"Not(A:Brand";v="8", "Chromium";v="%s", "Google Chrome";v="%s"`, v, v))
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("User-Agent", userAgents[rng.Intn(len(userAgents))])
}
