package browserenv

import (
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync"
	"weak"

	"github.com/dop251/goja"
)

const (
	xhrUnsent = iota
	xhrOpened
	xhrHeadersReceived
	xhrLoading
	xhrDone
)

type xhrState struct {
	method  string
	url     string
	headers map[string]string
	resp    *Response
}

// xhrTable maps live request objects to their Go-side state without
// keeping them alive.
type xhrTable struct {
	mu     sync.Mutex
	states map[weak.Pointer[goja.Object]]*xhrState
}

func newXHRTable() *xhrTable {
	return &xhrTable{states: make(map[weak.Pointer[goja.Object]]*xhrState)}
}

func (t *xhrTable) put(obj *goja.Object, st *xhrState) {
	key := weak.Make(obj)
	t.mu.Lock()
	t.states[key] = st
	t.mu.Unlock()
	runtime.AddCleanup(obj, t.drop, key)
}

func (t *xhrTable) get(obj *goja.Object) *xhrState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[weak.Make(obj)]
}

func (t *xhrTable) drop(key weak.Pointer[goja.Object]) {
	t.mu.Lock()
	delete(t.states, key)
	t.mu.Unlock()
}

// defineXHR builds the XMLHttpRequest constructor. Requests complete
// synchronously inside send(); handlers fire before send returns.
func (w *Window) defineXHR() (*goja.Object, error) {
	vm := w.vm
	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		w.xhrs.put(call.This, &xhrState{headers: make(map[string]string)})
		for name, v := range map[string]interface{}{
			"readyState":   xhrUnsent,
			"status":       0,
			"statusText":   "",
			"responseText": "",
			"response":     "",
			"responseURL":  "",
			"timeout":      0,
		} {
			_ = call.This.Set(name, v)
		}
		_ = call.This.Set("withCredentials", false)
		for _, name := range []string{"onreadystatechange", "onload", "onerror"} {
			_ = call.This.Set(name, goja.Null())
		}
		return nil
	}).(*goja.Object)

	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		return nil, errors.New("XMLHttpRequest has no prototype")
	}

	states := map[string]int{
		"UNSENT":           xhrUnsent,
		"OPENED":           xhrOpened,
		"HEADERS_RECEIVED": xhrHeadersReceived,
		"LOADING":          xhrLoading,
		"DONE":             xhrDone,
	}
	for name, v := range states {
		_ = DefinedValue(vm, ctor, name, v, Attrs{Writable: boolPtr(false), Enumerable: boolPtr(true), Configurable: boolPtr(false)})
		_ = DefinedValue(vm, proto, name, v, Attrs{Writable: boolPtr(false), Enumerable: boolPtr(true), Configurable: boolPtr(false)})
	}

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"open":                  w.xhrOpen,
		"setRequestHeader":      w.xhrSetRequestHeader,
		"send":                  w.xhrSend,
		"abort":                 w.xhrAbort,
		"getResponseHeader":     w.xhrGetResponseHeader,
		"getAllResponseHeaders": w.xhrGetAllResponseHeaders,
	}
	for name, fn := range methods {
		if err := DefinedValue(vm, proto, name, fn, Attrs{Enumerable: boolPtr(true)}); err != nil {
			return nil, err
		}
	}

	if err := nameFunction(vm, ctor, "XMLHttpRequest"); err != nil {
		return nil, err
	}
	if err := ToFnNative(vm, ctor); err != nil {
		return nil, err
	}
	return ctor, nil
}

// receiver resolves this to a request object, throwing like a browser when
// a method is called on anything else.
func (w *Window) receiver(this goja.Value) (*goja.Object, *xhrState) {
	if obj, ok := w.unwrap(this).(*goja.Object); ok {
		if st := w.xhrs.get(obj); st != nil {
			return obj, st
		}
	}
	panic(w.vm.NewTypeError("Illegal invocation"))
}

func (w *Window) xhrOpen(call goja.FunctionCall) goja.Value {
	obj, st := w.receiver(call.This)
	st.method = strings.ToUpper(call.Argument(0).String())
	st.url = w.resolveURL(call.Argument(1).String())
	st.headers = make(map[string]string)
	st.resp = nil
	w.xhrTransition(obj, xhrOpened)
	return goja.Undefined()
}

func (w *Window) xhrSetRequestHeader(call goja.FunctionCall) goja.Value {
	_, st := w.receiver(call.This)
	st.headers[call.Argument(0).String()] = call.Argument(1).String()
	return goja.Undefined()
}

func (w *Window) xhrSend(call goja.FunctionCall) goja.Value {
	obj, st := w.receiver(call.This)
	if st.method == "" {
		panic(w.vm.NewTypeError("Failed to execute 'send' on 'XMLHttpRequest': The object's state must be OPENED."))
	}

	req := Request{Method: st.method, URL: st.url, Headers: st.headers}
	if body := call.Argument(0); !goja.IsUndefined(body) && !goja.IsNull(body) {
		req.Body = body.String()
	}
	w.record(req)

	resp, err := w.transport.RoundTrip(w.context(), &req)
	if err != nil {
		_ = obj.Set("status", 0)
		w.xhrTransition(obj, xhrDone)
		w.fire(obj, "onerror")
		return goja.Undefined()
	}

	st.resp = resp
	_ = obj.Set("status", resp.Status)
	_ = obj.Set("statusText", resp.StatusText)
	_ = obj.Set("responseURL", resp.URL)
	_ = obj.Set("responseText", resp.Body)
	_ = obj.Set("response", resp.Body)
	w.xhrTransition(obj, xhrDone)
	w.fire(obj, "onload")
	return goja.Undefined()
}

func (w *Window) xhrAbort(call goja.FunctionCall) goja.Value {
	obj, st := w.receiver(call.This)
	st.resp = nil
	_ = obj.Set("readyState", xhrUnsent)
	_ = obj.Set("status", 0)
	return goja.Undefined()
}

func (w *Window) xhrGetResponseHeader(call goja.FunctionCall) goja.Value {
	_, st := w.receiver(call.This)
	if st.resp == nil {
		return goja.Null()
	}
	if v, ok := st.resp.Headers[strings.ToLower(call.Argument(0).String())]; ok {
		return w.vm.ToValue(v)
	}
	return goja.Null()
}

func (w *Window) xhrGetAllResponseHeaders(call goja.FunctionCall) goja.Value {
	_, st := w.receiver(call.This)
	if st.resp == nil {
		return w.vm.ToValue("")
	}
	names := make([]string, 0, len(st.resp.Headers))
	for k := range st.resp.Headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(strings.ToLower(k) + ": " + st.resp.Headers[k] + "\r\n")
	}
	return w.vm.ToValue(b.String())
}

func (w *Window) xhrTransition(obj *goja.Object, state int) {
	_ = obj.Set("readyState", state)
	w.fire(obj, "onreadystatechange")
}

// fire calls obj[handler] with a minimal event. Exceptions propagate into
// the calling script.
func (w *Window) fire(obj *goja.Object, handler string) {
	fn, ok := goja.AssertFunction(obj.Get(handler))
	if !ok {
		return
	}
	event := w.vm.NewObject()
	_ = event.Set("type", strings.TrimPrefix(handler, "on"))
	_ = event.Set("target", obj)
	if _, err := fn(obj, event); err != nil {
		rethrow(w.vm, err)
	}
}

func rethrow(vm *goja.Runtime, err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		panic(interrupted)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex)
	}
	panic(vm.NewGoError(err))
}
