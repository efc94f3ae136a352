package browserenv

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Window owns the stand-in browser globals of one runtime.
type Window struct {
	vm        *goja.Runtime
	profile   Profile
	snapshot  *Snapshot
	transport Transport
	unwrap    func(goja.Value) goja.Value

	local   *Storage
	session *Storage
	xhrs    *xhrTable

	mu       sync.Mutex
	ctx      context.Context
	requests []Request
	history  []string
}

// Option customizes DefineWindow.
type Option func(*Window)

// WithTransport routes XMLHttpRequest traffic through t instead of the
// offline default.
func WithTransport(t Transport) Option {
	return func(w *Window) {
		if t != nil {
			w.transport = t
		}
	}
}

// WithUnwrap lets host methods recognize their receiver when scripts call
// them through an interception wrapper.
func WithUnwrap(fn func(goja.Value) goja.Value) Option {
	return func(w *Window) { w.unwrap = fn }
}

// DefineWindow installs the stand-in globals into vm: window, self, parent
// and global aliases, navigator, location, history, document,
// localStorage, sessionStorage, XMLHttpRequest, Image and XPathResult.
func DefineWindow(vm *goja.Runtime, profile Profile, opts ...Option) (*Window, error) {
	w := &Window{
		vm:        vm,
		profile:   profile,
		transport: OfflineTransport{},
		unwrap:    func(v goja.Value) goja.Value { return v },
		local:     NewStorage(profile.LocalStorage),
		session:   NewStorage(profile.SessionStorage),
		xhrs:      newXHRTable(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if profile.HTML != "" {
		snap, err := ParseSnapshot(profile.HTML)
		if err != nil {
			return nil, err
		}
		w.snapshot = snap
	}

	if err := w.define(); err != nil {
		return nil, fmt.Errorf("define window: %w", err)
	}
	return w, nil
}

func (w *Window) define() error {
	vm := w.vm
	global := vm.GlobalObject()

	if err := ToObjectTag(vm, global, "Window"); err != nil {
		return err
	}
	for _, alias := range []string{"window", "self", "parent", "global"} {
		if err := DefinedValue(vm, global, alias, global); err != nil {
			return err
		}
	}

	builders := []struct {
		name string
		tag  string
		make func() (*goja.Object, error)
	}{
		{"navigator", "Navigator", w.defineNavigator},
		{"location", "Location", w.defineLocation},
		{"history", "History", w.defineHistory},
		{"document", "HTMLDocument", w.defineDocument},
		{"localStorage", "Storage", func() (*goja.Object, error) { return w.local.bind(vm) }},
		{"sessionStorage", "Storage", func() (*goja.Object, error) { return w.session.bind(vm) }},
		{"XMLHttpRequest", "XMLHttpRequest", w.defineXHR},
		{"Image", "HTMLImageElement", w.defineImage},
		{"XPathResult", "XPathResult", w.defineXPathResult},
	}
	for _, b := range builders {
		obj, err := b.make()
		if err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		if err := w.setWindowEnv(b.name, b.tag, obj); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

// setWindowEnv tags value and publishes it as a global.
func (w *Window) setWindowEnv(name, tag string, value *goja.Object) error {
	if tag == "" {
		tag = strings.ToUpper(name[:1]) + name[1:]
	}
	if err := ToObjectTag(w.vm, value, tag); err != nil {
		return err
	}
	return DefinedValue(w.vm, w.vm.GlobalObject(), name, value)
}

// SetContext bounds network calls made by scripts from now on.
func (w *Window) SetContext(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	w.ctx = ctx
}

func (w *Window) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

// Requests returns every request scripts attempted: XMLHttpRequest sends
// and image beacons.
func (w *Window) Requests() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Request(nil), w.requests...)
}

func (w *Window) record(req Request) {
	w.mu.Lock()
	w.requests = append(w.requests, req)
	w.mu.Unlock()
}

// LocalStorage returns the store behind window.localStorage.
func (w *Window) LocalStorage() *Storage { return w.local }

// SessionStorage returns the store behind window.sessionStorage.
func (w *Window) SessionStorage() *Storage { return w.session }

// Snapshot returns the parsed document snapshot, or nil.
func (w *Window) Snapshot() *Snapshot { return w.snapshot }

func (w *Window) defineNavigator() (*goja.Object, error) {
	nav := w.vm.NewObject()
	p := w.profile
	fields := map[string]string{
		"userAgent": p.UserAgent,
		"platform":  p.Platform,
		"language":  p.Language,
		"vendor":    p.Vendor,
	}
	for name, v := range fields {
		if v != "" {
			_ = nav.Set(name, v)
		}
	}
	if len(p.Languages) > 0 {
		langs := make([]interface{}, len(p.Languages))
		for i, l := range p.Languages {
			langs[i] = l
		}
		_ = nav.Set("languages", w.vm.NewArray(langs...))
	}
	if p.UserAgent != "" {
		_ = nav.Set("webdriver", false)
		_ = nav.Set("cookieEnabled", true)
	}
	return nav, nil
}

func (w *Window) defineLocation() (*goja.Object, error) {
	loc := w.vm.NewObject()
	if w.profile.Href == "" {
		return loc, nil
	}
	u, err := url.Parse(w.profile.Href)
	if err != nil {
		return nil, fmt.Errorf("parse href: %w", err)
	}

	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	hash := ""
	if u.Fragment != "" {
		hash = "#" + u.Fragment
	}
	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	fields := map[string]string{
		"href":     u.String(),
		"protocol": u.Scheme + ":",
		"host":     u.Host,
		"hostname": u.Hostname(),
		"port":     u.Port(),
		"pathname": pathname,
		"search":   search,
		"hash":     hash,
		"origin":   u.Scheme + "://" + u.Host,
	}
	for name, v := range fields {
		_ = loc.Set(name, v)
	}
	href := u.String()
	_ = loc.Set("toString", func() string { return href })
	return loc, nil
}

func (w *Window) defineHistory() (*goja.Object, error) {
	vm := w.vm
	h := vm.NewObject()
	_ = h.Set("length", 1)
	_ = h.Set("state", goja.Null())

	push := func(replace bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			w.mu.Lock()
			target := call.Argument(2)
			entry := ""
			if !goja.IsUndefined(target) && !goja.IsNull(target) {
				entry = target.String()
			}
			if replace && len(w.history) > 0 {
				w.history[len(w.history)-1] = entry
			} else {
				w.history = append(w.history, entry)
			}
			length := len(w.history) + 1
			w.mu.Unlock()

			_ = h.Set("state", call.Argument(0))
			_ = h.Set("length", length)
			return goja.Undefined()
		}
	}
	_ = h.Set("pushState", push(false))
	_ = h.Set("replaceState", push(true))
	for _, name := range []string{"back", "forward", "go"} {
		_ = h.Set(name, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}
	return h, nil
}

// resolveURL resolves raw against the page location. Without a location,
// or when either side does not parse, raw is returned unchanged.
func (w *Window) resolveURL(raw string) string {
	if w.profile.Href == "" {
		return raw
	}
	base, err := url.Parse(w.profile.Href)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// defineImage builds the Image constructor. Assigning src records a beacon
// request without fetching it.
func (w *Window) defineImage() (*goja.Object, error) {
	vm := w.vm
	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		img := w.newElement("img", "", "", "", nil)
		_ = img.Set("width", call.Argument(0).ToInteger())
		_ = img.Set("height", call.Argument(1).ToInteger())

		src := ""
		getter := vm.ToValue(func() string { return src })
		setter := vm.ToValue(func(v string) {
			src = w.resolveURL(v)
			w.record(Request{Method: "GET", URL: src})
		})
		_ = img.DefineAccessorProperty("src", getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
		return img
	}).(*goja.Object)

	if err := nameFunction(vm, ctor, "Image"); err != nil {
		return nil, err
	}
	if err := ToFnNative(vm, ctor); err != nil {
		return nil, err
	}
	return ctor, nil
}
