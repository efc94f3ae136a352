package browserenv

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/microcosm-cc/bluemonday"
)

// Snapshot is a parsed, script-free copy of a page that document queries
// are answered from.
type Snapshot struct {
	Title string
	doc   *goquery.Document
}

var snapshotPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class", "name", "type", "value").Globally()
	p.AllowElements("form", "input", "button", "canvas", "section", "header", "footer", "nav", "main")
	return p
}()

// ParseSnapshot parses html. The title is taken from the raw page; the
// element tree is sanitized so no script or event handler survives.
func ParseSnapshot(html string) (*Snapshot, error) {
	raw, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	title := strings.TrimSpace(raw.Find("title").First().Text())

	body := raw.Find("body")
	inner, err := body.Html()
	if err != nil || body.Length() == 0 {
		inner = html
	}
	clean := snapshotPolicy.Sanitize(inner)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("parse sanitized snapshot: %w", err)
	}
	return &Snapshot{Title: title, doc: doc}, nil
}

// Find runs a CSS selector against the snapshot.
func (s *Snapshot) Find(selector string) *goquery.Selection {
	if s == nil {
		return &goquery.Selection{}
	}
	return s.doc.Find(selector)
}

// Body returns the sanitized body markup.
func (s *Snapshot) Body() string {
	if s == nil {
		return ""
	}
	out, _ := s.doc.Find("body").Html()
	return out
}

// defineDocument builds the document stand-in.
func (w *Window) defineDocument() (*goja.Object, error) {
	vm := w.vm
	doc := vm.NewObject()

	set := func(name string, v interface{}) { _ = doc.Set(name, v) }
	if w.profile.Cookie != "" {
		set("cookie", w.profile.Cookie)
	} else {
		set("cookie", "")
	}
	if w.profile.Referrer != "" {
		set("referrer", w.profile.Referrer)
	}
	if w.profile.Href != "" {
		set("URL", w.profile.Href)
	}
	if w.snapshot != nil {
		set("title", w.snapshot.Title)
		set("readyState", "complete")
	}

	set("querySelector", w.query(func(s *goquery.Selection) goja.Value {
		return w.elementOrNull(s.First())
	}))
	set("querySelectorAll", w.query(w.elementList))
	set("getElementById", w.lookup("#", func(s *goquery.Selection) goja.Value {
		return w.elementOrNull(s.First())
	}))
	set("getElementsByClassName", w.lookup(".", w.elementList))
	set("getElementsByTagName", w.lookup("", w.elementList))
	set("evaluate", w.evaluate)
	set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return w.newElement(tag, "", "", "", nil)
	})
	return doc, nil
}

func (w *Window) query(render func(*goquery.Selection) goja.Value) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(w.vm.NewTypeError("1 argument required, but only 0 present."))
		}
		return render(w.find(call.Arguments[0].String()))
	}
}

// lookup turns an id, class or tag name into a selector before querying.
func (w *Window) lookup(prefix string, render func(*goquery.Selection) goja.Value) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := strings.TrimSpace(call.Argument(0).String())
		if name == "" {
			return render(&goquery.Selection{})
		}
		if prefix == "." {
			name = strings.Join(strings.Fields(name), ".")
		}
		return render(w.find(prefix + name))
	}
}

// find recovers from selectors cascadia cannot compile.
func (w *Window) find(selector string) (sel *goquery.Selection) {
	defer func() {
		if recover() != nil {
			sel = &goquery.Selection{}
		}
	}()
	return w.snapshot.Find(selector)
}

func (w *Window) elementOrNull(s *goquery.Selection) goja.Value {
	if s.Length() == 0 {
		return goja.Null()
	}
	return w.fromSelection(s)
}

func (w *Window) elementList(s *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		items = append(items, w.fromSelection(el))
	})
	return w.vm.NewArray(items...)
}

func (w *Window) fromSelection(s *goquery.Selection) goja.Value {
	attrs := make(map[string]string)
	if node := s.Get(0); node != nil {
		for _, a := range node.Attr {
			attrs[a.Key] = a.Val
		}
	}
	inner, _ := s.Html()
	return w.newElement(goquery.NodeName(s), s.Text(), inner, s.AttrOr("id", ""), attrs)
}

// newElement builds a detached element stand-in.
func (w *Window) newElement(tag, text, inner, id string, attrs map[string]string) *goja.Object {
	vm := w.vm
	if attrs == nil {
		attrs = make(map[string]string)
	}
	el := vm.NewObject()
	_ = el.Set("tagName", strings.ToUpper(tag))
	_ = el.Set("nodeName", strings.ToUpper(tag))
	_ = el.Set("id", id)
	_ = el.Set("className", attrs["class"])
	_ = el.Set("textContent", text)
	_ = el.Set("innerHTML", inner)
	_ = el.Set("style", vm.NewObject())
	_ = el.Set("getAttribute", func(name string) goja.Value {
		if v, ok := attrs[name]; ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = el.Set("setAttribute", func(name, value string) {
		attrs[name] = value
	})
	_ = el.Set("hasAttribute", func(name string) bool {
		_, ok := attrs[name]
		return ok
	})
	_ = ToObjectTag(vm, el, elementTag(tag))
	return el
}

var elementTags = map[string]string{
	"div":    "HTMLDivElement",
	"span":   "HTMLSpanElement",
	"a":      "HTMLAnchorElement",
	"img":    "HTMLImageElement",
	"canvas": "HTMLCanvasElement",
	"input":  "HTMLInputElement",
	"form":   "HTMLFormElement",
	"p":      "HTMLParagraphElement",
}

func elementTag(tag string) string {
	if name, ok := elementTags[tag]; ok {
		return name
	}
	return "HTMLElement"
}
