package script

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/frontend"
	"github.com/jward/understory/internal/rules"
)

func nodeArg(fn string, arg object.Object) (*sitter.Node, object.Object) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// makeNodeTextFn creates "node_text". Risor's proxies cannot pass the
// []byte source that Node.Content needs, so the file's source is bound
// here.
//
// node_text(node) → string
func makeNodeTextFn(c *rules.Context) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(c.Text(node))
	})
}

// makeNodeChildFn creates "node_child", which returns Risor nil rather
// than a proxied Go nil pointer when the field is absent.
//
// node_child(node, fieldName) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("node_child: field must be a string, got %s", args[1].Type())
		}
		child := node.ChildByFieldName(field.Value())
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// makeQueryFn creates "query", running a tree-sitter query below a node.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(c *rules.Context) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		lang, ok := frontend.Grammar(c.Language())
		if !ok {
			return object.Errorf("query: no grammar for language %q", c.Language())
		}

		q, err := sitter.NewQuery([]byte(pattern.Value()), lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, c.Source())

			captures := make(map[string]object.Object)
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				p, err := object.NewProxy(capture.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// makeReportFn creates "report", emitting a finding anchored to the
// visited node or to an explicit node.
//
// report(message) or report(message, node)
func makeReportFn(c *rules.Context, current *sitter.Node) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("report: expected 1 or 2 arguments, got %d", len(args))
		}
		msg, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("report: message must be a string, got %s", args[0].Type())
		}
		target := current
		if len(args) == 2 {
			node, errObj := nodeArg("report", args[1])
			if errObj != nil {
				return errObj
			}
			target = node
		}
		c.Report(target, msg.Value())
		return object.Nil
	})
}

// logObject gives scripts log.Info/Warn/Error backed by the engine logger.
type logObject struct {
	log hclog.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }
