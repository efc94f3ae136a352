/*
Package browserenv defines stand-in browser globals inside a goja runtime.

The stand-ins are plain data with just enough behavior for fingerprinting
scripts to run: window aliases, navigator, location, history, a document
answering queries from a sanitized HTML snapshot, Storage objects, an
XMLHttpRequest that goes through a pluggable Transport, and Image beacons.
None of them intercept anything; the envproxy package wraps them.

	w, err := browserenv.DefineWindow(vm, browserenv.DefaultProfile(),
		browserenv.WithTransport(browserenv.FixtureTransport{
			"https://api.example.com/config": {Body: `{"ok":true}`},
		}),
	)

# Transports

  - OfflineTransport: every request fails (default)
  - FixtureTransport: canned responses
  - HTTPTransport: live traffic through resty and go-retryablehttp, rate limited

Every attempted request is recorded and available from Window.Requests.
*/
package browserenv
