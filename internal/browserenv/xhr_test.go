package browserenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXHRWithFixtures(t *testing.T) {
	vm, w := newWindow(t, Profile{}, WithTransport(FixtureTransport{
		"https://api.example.com/config": {
			Body:    `{"ok":true}`,
			Headers: map[string]string{"content-type": "application/json"},
		},
	}))

	v := run(t, vm, `
		var log = [];
		var xhr = new XMLHttpRequest();
		xhr.onreadystatechange = function () { log.push(xhr.readyState); };
		xhr.onload = function (e) { log.push(e.type + ":" + xhr.status + ":" + xhr.responseText); };
		xhr.open("get", "https://api.example.com/config");
		xhr.setRequestHeader("X-Test", "1");
		xhr.send();
		log.push(xhr.getResponseHeader("Content-Type"), xhr.getResponseHeader("missing"));
		log.join("|");
	`)
	assert.Equal(t, `1|4|load:200:{"ok":true}|application/json|`, v.String())

	reqs := w.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, Request{
		Method:  "GET",
		URL:     "https://api.example.com/config",
		Headers: map[string]string{"X-Test": "1"},
	}, reqs[0])
}

func TestXHRPostBodyAndNotFound(t *testing.T) {
	vm, w := newWindow(t, Profile{}, WithTransport(FixtureTransport{}))

	v := run(t, vm, `
		var xhr = new XMLHttpRequest();
		xhr.open("POST", "/collect");
		xhr.send(JSON.stringify({a: 1}));
		xhr.status + " " + xhr.statusText + " " + xhr.getAllResponseHeaders().length;
	`)
	assert.Equal(t, "404 Not Found 0", v.String())
	require.Len(t, w.Requests(), 1)
	assert.Equal(t, `{"a":1}`, w.Requests()[0].Body)
}

func TestXHROfflineFiresError(t *testing.T) {
	vm, _ := newWindow(t, Profile{})

	v := run(t, vm, `
		var result = "none";
		var xhr = new XMLHttpRequest();
		xhr.onerror = function (e) { result = e.type + ":" + xhr.status + ":" + xhr.readyState; };
		xhr.open("GET", "https://blocked.example/");
		xhr.send();
		result;
	`)
	assert.Equal(t, "error:0:4", v.String())
}

func TestXHRLooksNative(t *testing.T) {
	vm, _ := newWindow(t, Profile{})

	assert.Equal(t, "function XMLHttpRequest() { [native code] }", run(t, vm, `XMLHttpRequest.toString()`).String())
	assert.Equal(t, "XMLHttpRequest", run(t, vm, `XMLHttpRequest.name`).String())
	assert.Equal(t, int64(4), run(t, vm, `XMLHttpRequest.DONE`).ToInteger())
	assert.True(t, run(t, vm, `new XMLHttpRequest() instanceof XMLHttpRequest`).ToBoolean())
}

func TestXHRIllegalInvocation(t *testing.T) {
	vm, _ := newWindow(t, Profile{})

	v := run(t, vm, `
		var msg;
		try { XMLHttpRequest.prototype.open.call({}, "GET", "/"); } catch (e) { msg = e instanceof TypeError && e.message; }
		msg;
	`)
	assert.Equal(t, "Illegal invocation", v.String())

	_, err := vm.RunString(`new XMLHttpRequest().send()`)
	assert.Error(t, err)
}

func TestXHRHandlerExceptionsPropagate(t *testing.T) {
	vm, _ := newWindow(t, Profile{}, WithTransport(FixtureTransport{}))

	v := run(t, vm, `
		var caught;
		var xhr = new XMLHttpRequest();
		xhr.onload = function () { throw new RangeError("handler"); };
		xhr.open("GET", "/x");
		try { xhr.send(); } catch (e) { caught = e.message; }
		caught;
	`)
	assert.Equal(t, "handler", v.String())
}

func TestXHRResolvesRelativeURLs(t *testing.T) {
	profile := Profile{Href: "https://shop.example/cart/view?x=1"}
	vm, w := newWindow(t, profile, WithTransport(FixtureTransport{
		"https://shop.example/api/token": {Body: "t-1"},
	}))

	v := run(t, vm, `
		var xhr = new XMLHttpRequest();
		xhr.open("GET", "/api/token");
		xhr.send();
		var img = new Image();
		img.src = "pixel.gif";
		xhr.responseText + "|" + xhr.responseURL + "|" + img.src;
	`)
	assert.Equal(t, "t-1|https://shop.example/api/token|https://shop.example/cart/pixel.gif", v.String())

	reqs := w.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "https://shop.example/api/token", reqs[0].URL)
}
