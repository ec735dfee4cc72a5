// Package security decides whether a strategy script is safe to load.
//
// Validation is heuristic static analysis, not isolation: a blacklist scan
// over the raw text followed by whitelist walks over the tree-sitter Python
// syntax tree. Attribute chains, builtins exposed by the execution
// environment and reflection can all slip past it.
package security

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Outcome is the result of validating one script.
// Safe is true exactly when Errors is empty.
type Outcome struct {
	Safe     bool     `json:"is_safe" yaml:"is_safe"`
	Errors   []string `json:"errors" yaml:"errors"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Messages returns errors followed by warnings.
func (o Outcome) Messages() []string {
	out := make([]string, 0, len(o.Errors)+len(o.Warnings))
	out = append(out, o.Errors...)
	return append(out, o.Warnings...)
}

// Report is the operator facing summary of an Outcome.
type Report struct {
	Safe      bool      `json:"is_safe" yaml:"is_safe"`
	Errors    []string  `json:"errors" yaml:"errors"`
	Warnings  []string  `json:"warnings" yaml:"warnings"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

func (o Outcome) Report(now time.Time) Report {
	return Report{Safe: o.Safe, Errors: o.Errors, Warnings: o.Warnings, Timestamp: now}
}

// Validator runs the validation pipeline. The zero value is not usable;
// use NewValidator. A Validator holds no per-call state and is safe for
// concurrent use.
type Validator struct {
	lang *sitter.Language
}

func NewValidator() *Validator {
	return &Validator{lang: python.GetLanguage()}
}

// Validate checks source and returns a fresh Outcome.
//
// Stages run in order: blacklist scan, parse, node-kind walk, call-site
// walk, import walk, dangerous-operation walk. A blacklist hit returns
// immediately with every matching message and nothing from later stages.
// A parse failure returns a single syntax error.
func (v *Validator) Validate(source string) Outcome {
	c := &checker{src: []byte(source)}

	if strings.TrimSpace(source) == "" {
		c.errorf("strategy source is empty")
		return c.outcome()
	}

	for _, p := range forbiddenPatterns {
		if p.Re.MatchString(source) {
			c.errors = append(c.errors, p.Message)
		}
	}
	if len(c.errors) > 0 {
		return c.outcome()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(v.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, c.src)
	if err != nil {
		return failed(fmt.Sprintf("parse error: %v", err))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return failed(syntaxError(root, c.src))
	}

	c.checkNodeKinds(root)
	c.checkCalls(root)
	c.checkImports(root)
	c.checkDangerousOps(root)

	return c.outcome()
}

// ValidateFile reads path and validates its contents. Unreadable or
// non-UTF-8 files produce a single error.
func (v *Validator) ValidateFile(path string) Outcome {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return failed(fmt.Sprintf("strategy file not found: %s", path))
	case err != nil:
		return failed(fmt.Sprintf("read strategy file: %v", err))
	}
	return v.ValidateBytes(data)
}

// ValidateBytes validates raw file contents, rejecting non-UTF-8 input.
func (v *Validator) ValidateBytes(data []byte) Outcome {
	if !utf8.Valid(data) {
		return failed("strategy file is not valid UTF-8")
	}
	return v.Validate(string(data))
}

func failed(msg string) Outcome {
	return Outcome{Errors: []string{msg}, Warnings: []string{}}
}

// checker accumulates messages for exactly one Validate call.
type checker struct {
	src      []byte
	errors   []string
	warnings []string
}

func (c *checker) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *checker) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *checker) outcome() Outcome {
	return Outcome{
		Safe:     len(c.errors) == 0,
		Errors:   append([]string{}, c.errors...),
		Warnings: append([]string{}, c.warnings...),
	}
}

func (c *checker) text(n *sitter.Node) string {
	return string(c.src[n.StartByte():n.EndByte()])
}

// walk visits n and all of its descendants depth first.
func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

func (c *checker) checkNodeKinds(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		if !n.IsNamed() {
			return
		}
		kind := n.Type()
		switch {
		case allowedNodeKinds[kind]:
		case strings.Contains(kind, "import"):
			// handled by checkImports
		case dangerousNodeKinds[kind]:
			c.errorf("forbidden node kind: %s", kind)
		default:
			c.warnf("unknown node kind: %s", kind)
		}
	})
}

func (c *checker) checkCalls(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		if n.Type() != "call" {
			return
		}
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			name := c.text(fn)
			if !allowedCallables[name] && unknownUserCall(name) {
				c.warnf("call to unknown function: %s", name)
			}
		case "attribute":
			obj := fn.ChildByFieldName("object")
			attr := fn.ChildByFieldName("attribute")
			if obj == nil || attr == nil || obj.Type() != "identifier" {
				return
			}
			if numericsAliases[c.text(obj)] && !numericsFactories[c.text(attr)] {
				c.warnf("call to unknown numpy function: %s", c.text(attr))
			}
		}
	})
}

// unknownUserCall reports whether a bare-name call outside the whitelist
// deserves a warning: lowercase names that do not start with an underscore
// or a reserved strategy prefix.
func unknownUserCall(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLower(r) || strings.HasPrefix(name, "_") {
		return false
	}
	for _, p := range strategyCallPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

func (c *checker) checkImports(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				name := c.importedName(n.NamedChild(i))
				if name == "" {
					continue
				}
				if top := topLevel(name); !allowedModules[top] {
					c.errorf("forbidden import of module: %s", top)
				}
			}
		case "import_from_statement":
			module := c.fromModule(n.ChildByFieldName("module_name"))
			if module != "" && !allowedModules[topLevel(module)] {
				c.errorf("forbidden import from module: %s", module)
			}
		case "future_import_statement":
			c.errorf("forbidden import from module: %s", "__future__")
		}
	})
}

func (c *checker) importedName(n *sitter.Node) string {
	switch n.Type() {
	case "dotted_name":
		return c.text(n)
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return c.text(name)
		}
	}
	return ""
}

// fromModule returns the module named by a from-import. Purely relative
// imports ("from . import x") name no module and return "".
func (c *checker) fromModule(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "dotted_name":
		return c.text(n)
	case "relative_import":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "dotted_name" {
				return c.text(child)
			}
		}
	}
	return ""
}

func topLevel(module string) string {
	top, _, _ := strings.Cut(module, ".")
	return top
}

func (c *checker) checkDangerousOps(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		if n.Type() != "call" {
			return
		}
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" || c.text(fn) != "open" {
			return
		}
		args := n.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() == 0 {
			return
		}
		first := args.NamedChild(0)
		if mode, ok := c.stringLiteral(first); ok && strings.ContainsAny(mode, "wa") {
			c.errorf("opening files in write or append mode is forbidden")
		}
	})
}

// stringLiteral returns the body of a plain string literal node.
func (c *checker) stringLiteral(n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "string" {
		return "", false
	}
	s := strings.TrimLeft(c.text(n), "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)], true
		}
	}
	return s, true
}

// syntaxError describes the first ERROR or MISSING node under root.
func syntaxError(root *sitter.Node, src []byte) string {
	var found *sitter.Node
	walk(root, func(n *sitter.Node) {
		if found == nil && (n.IsError() || n.IsMissing()) {
			found = n
		}
	})
	if found == nil {
		return "syntax error"
	}
	p := found.StartPoint()
	if found.IsMissing() {
		return fmt.Sprintf("syntax error at line %d, column %d: missing %s", p.Row+1, p.Column+1, found.Type())
	}
	snippet := string(src[found.StartByte():found.EndByte()])
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	return fmt.Sprintf("syntax error at line %d, column %d: unexpected %q", p.Row+1, p.Column+1, snippet)
}
