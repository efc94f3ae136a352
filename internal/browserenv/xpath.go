package browserenv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// XPathResult type codes.
const (
	xpathAny               = 0
	xpathNumber            = 1
	xpathString            = 2
	xpathBoolean           = 3
	xpathUnorderedIterator = 4
	xpathOrderedIterator   = 5
	xpathUnorderedSnapshot = 6
	xpathOrderedSnapshot   = 7
	xpathAnyUnordered      = 8
	xpathFirstOrdered      = 9
)

var xpathTypeNames = []string{
	"ANY_TYPE", "NUMBER_TYPE", "STRING_TYPE", "BOOLEAN_TYPE",
	"UNORDERED_NODE_ITERATOR_TYPE", "ORDERED_NODE_ITERATOR_TYPE",
	"UNORDERED_NODE_SNAPSHOT_TYPE", "ORDERED_NODE_SNAPSHOT_TYPE",
	"ANY_UNORDERED_NODE_TYPE", "FIRST_ORDERED_NODE_TYPE",
}

// Evaluate runs an XPath expression against the snapshot. The result is
// a float64, string, bool or node list.
func (s *Snapshot) Evaluate(expr string) (interface{}, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	if s == nil || len(s.doc.Nodes) == 0 {
		root := &html.Node{Type: html.DocumentNode}
		return collect(compiled.Evaluate(htmlquery.CreateXPathNavigator(root))), nil
	}
	return collect(compiled.Evaluate(htmlquery.CreateXPathNavigator(s.doc.Nodes[0]))), nil
}

func collect(v interface{}) interface{} {
	iter, ok := v.(*xpath.NodeIterator)
	if !ok {
		return v
	}
	var nodes []*html.Node
	for iter.MoveNext() {
		if nav, ok := iter.Current().(*htmlquery.NodeNavigator); ok {
			nodes = append(nodes, nav.Current())
		}
	}
	return nodes
}

// defineXPathResult builds the XPathResult constructor, which only carries
// the type constants; scripts cannot construct it.
func (w *Window) defineXPathResult() (*goja.Object, error) {
	vm := w.vm
	ctor := vm.ToValue(func(goja.ConstructorCall) *goja.Object {
		panic(vm.NewTypeError("Illegal constructor"))
	}).(*goja.Object)
	for code, name := range xpathTypeNames {
		if err := DefinedValue(vm, ctor, name, vm.ToValue(code)); err != nil {
			return nil, err
		}
	}
	if err := nameFunction(vm, ctor, "XPathResult"); err != nil {
		return nil, err
	}
	if err := ToFnNative(vm, ctor); err != nil {
		return nil, err
	}
	return ctor, nil
}

// evaluate implements document.evaluate(expression, contextNode, resolver, type).
// The context node is ignored; expressions run from the document root.
func (w *Window) evaluate(call goja.FunctionCall) goja.Value {
	vm := w.vm
	if len(call.Arguments) == 0 {
		panic(vm.NewTypeError("Failed to execute 'evaluate' on 'Document': 2 arguments required, but only 0 present."))
	}
	expr := call.Argument(0).String()
	want := int(call.Argument(3).ToInteger())

	value, err := w.snapshot.Evaluate(expr)
	if err != nil {
		panic(vm.NewTypeError("Failed to execute 'evaluate' on 'Document': The string '%s' is not a valid XPath expression.", expr))
	}
	nodes, isNodes := value.([]*html.Node)

	if want == xpathAny {
		switch value.(type) {
		case float64:
			want = xpathNumber
		case string:
			want = xpathString
		case bool:
			want = xpathBoolean
		default:
			want = xpathUnorderedIterator
		}
	}

	result := vm.NewObject()
	_ = result.Set("resultType", want)
	_ = ToObjectTag(vm, result, "XPathResult")

	switch want {
	case xpathNumber:
		_ = result.Set("numberValue", xpathNumberOf(value))
		return result
	case xpathString:
		_ = result.Set("stringValue", xpathStringOf(value))
		return result
	case xpathBoolean:
		_ = result.Set("booleanValue", xpathBooleanOf(value))
		return result
	}

	if !isNodes {
		panic(vm.NewTypeError("Failed to execute 'evaluate' on 'Document': The result is not a node set, and therefore cannot be converted to the desired type."))
	}
	items := make([]goja.Value, len(nodes))
	for i, n := range nodes {
		items[i] = w.fromNode(n)
	}

	switch want {
	case xpathAnyUnordered, xpathFirstOrdered:
		first := goja.Null()
		if len(items) > 0 {
			first = items[0]
		}
		_ = result.Set("singleNodeValue", first)
	case xpathUnorderedSnapshot, xpathOrderedSnapshot:
		_ = result.Set("snapshotLength", len(items))
		_ = result.Set("snapshotItem", func(i int) goja.Value {
			if i < 0 || i >= len(items) {
				return goja.Null()
			}
			return items[i]
		})
	default:
		next := 0
		_ = result.Set("iterateNext", func() goja.Value {
			if next >= len(items) {
				return goja.Null()
			}
			next++
			return items[next-1]
		})
	}
	return result
}

func (w *Window) fromNode(n *html.Node) goja.Value {
	if n.Type == html.TextNode {
		return w.vm.ToValue(n.Data)
	}
	return w.fromSelection(goquery.NewDocumentFromNode(n).Selection)
}

func xpathStringOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []*html.Node:
		if len(t) == 0 {
			return ""
		}
		return htmlquery.InnerText(t[0])
	}
	return fmt.Sprint(v)
}

func xpathNumberOf(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(xpathStringOf(v)), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func xpathBooleanOf(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case []*html.Node:
		return len(t) > 0
	}
	return false
}
