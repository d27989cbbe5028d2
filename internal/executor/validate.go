package executor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxReportedSyntaxErrors bounds the number of locations listed in a traceback.
const maxReportedSyntaxErrors = 5

// SyntaxError is one ERROR or MISSING node found by the parser
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

// findBlockedPattern returns the first blocked substring contained in code.
func findBlockedPattern(code string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if p != "" && strings.Contains(code, p) {
			return p, true
		}
	}
	return "", false
}

// CheckSyntax parses code as Python 3 and returns the syntax errors found.
// An empty slice means the program parsed cleanly.
//
// The grammar is more lenient than CPython: it accepts Python 2 print and
// exec statements, empty blocks and return outside a function. Those are
// reported here as well.
func CheckSyntax(ctx context.Context, code string) ([]SyntaxError, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	content := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var errs []SyntaxError
	collectSyntaxErrors(root, content, &errs, false, 0)
	if len(errs) == 0 && root.HasError() {
		// HasError can be set without a locatable node
		errs = append(errs, SyntaxError{Line: 1, Message: "invalid syntax"})
	}
	return errs, nil
}

func collectSyntaxErrors(node *sitter.Node, content []byte, errs *[]SyntaxError, inFunction bool, depth int) {
	if node == nil || depth > 1000 || len(*errs) >= maxReportedSyntaxErrors {
		return
	}

	if msg, ok := syntaxErrorMessage(node, content, inFunction); ok {
		point := node.StartPoint()
		*errs = append(*errs, SyntaxError{
			Line:    int(point.Row) + 1,
			Column:  int(point.Column),
			Message: msg,
		})
	}

	switch node.Type() {
	case "function_definition":
		inFunction = true
	case "class_definition":
		inFunction = false
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), content, errs, inFunction, depth+1)
	}
}

// syntaxErrorMessage reports whether node is a syntax error on its own.
func syntaxErrorMessage(node *sitter.Node, content []byte, inFunction bool) (string, bool) {
	switch {
	case node.IsMissing():
		return fmt.Sprintf("missing %s", node.Type()), true
	case node.IsError():
		if start, end := node.StartByte(), min(node.EndByte(), uint32(len(content))); end > start && end-start < 60 {
			return fmt.Sprintf("unexpected %q", strings.TrimSpace(string(content[start:end]))), true
		}
		return "invalid syntax", true
	}

	switch node.Type() {
	case "print_statement":
		return "missing parentheses in call to 'print'", true
	case "exec_statement":
		return "missing parentheses in call to 'exec'", true
	case "return_statement":
		if !inFunction {
			return "'return' outside function", true
		}
	case "block":
		if !hasStatement(node) {
			return "expected an indented block", true
		}
	}
	return "", false
}

// hasStatement reports whether a block holds anything besides comments.
func hasStatement(block *sitter.Node) bool {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		if block.NamedChild(i).Type() != "comment" {
			return true
		}
	}
	return false
}

// formatSyntaxErrors renders syntax errors as "line L, column C: message" lines.
func formatSyntaxErrors(errs []SyntaxError) string {
	var sb strings.Builder
	sb.WriteString("Syntax error")
	for _, e := range errs {
		fmt.Fprintf(&sb, "\n  line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return sb.String()
}
