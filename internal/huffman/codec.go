package huffman

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/model"
)

// CodeTable maps a symbol to its bit string of '0' and '1' characters.
type CodeTable map[rune]string

// Result is an encoded content together with the table needed to decode it.
type Result struct {
	Encoded string
	Table   CodeTable
}

// Encode compresses content into a bit string. Empty content yields an empty
// bit string and an empty table. Content must be valid UTF-8: invalid bytes
// are read as utf8.RuneError and do not survive a round trip.
func Encode(content string) Result {
	tree := BuildTree(FrequencyTable(content))
	table := tree.Codes()

	var sb strings.Builder
	for _, r := range content {
		sb.WriteString(table[r])
	}
	return Result{Encoded: sb.String(), Table: table}
}

// Model converts the result into its serializable shape.
func (r Result) Model() model.HuffmanEncoding {
	table := make(map[string]string, len(r.Table))
	for sym, code := range r.Table {
		table[string(sym)] = code
	}
	return model.HuffmanEncoding{Encoded: r.Encoded, CodeTable: table}
}

// FromModel parses a serialized code table. Every key must be exactly one character.
func FromModel(enc model.HuffmanEncoding) (Result, error) {
	table := make(CodeTable, len(enc.CodeTable))
	for key, code := range enc.CodeTable {
		if utf8.RuneCountInString(key) != 1 {
			return Result{}, apperrors.NewValidationError("code_table", fmt.Sprintf("key %q is not a single character", key))
		}
		r, _ := utf8.DecodeRuneInString(key)
		table[r] = code
	}
	return Result{Encoded: enc.Encoded, Table: table}, nil
}

type trieNode struct {
	children [2]*trieNode
	symbol   rune
	leaf     bool
}

// buildTrie turns a code table into a decoding trie and rejects tables that
// are not prefix-free or contain characters other than '0' and '1'.
func buildTrie(table CodeTable) (*trieNode, error) {
	root := &trieNode{}

	// Sorted for deterministic error reporting
	symbols := make([]rune, 0, len(table))
	for sym := range table {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	for _, sym := range symbols {
		code := table[sym]
		if code == "" {
			return nil, apperrors.NewValidationError("code_table", fmt.Sprintf("empty code for %q", sym))
		}
		node := root
		for i := 0; i < len(code); i++ {
			bit, ok := bitIndex(code[i])
			if !ok {
				return nil, apperrors.NewValidationError("code_table", fmt.Sprintf("code for %q contains %q", sym, code[i]))
			}
			if node.leaf {
				return nil, apperrors.NewValidationError("code_table", fmt.Sprintf("code for %q extends another code", sym))
			}
			if node.children[bit] == nil {
				node.children[bit] = &trieNode{}
			}
			node = node.children[bit]
		}
		if node.leaf || node.children[0] != nil || node.children[1] != nil {
			return nil, apperrors.NewValidationError("code_table", fmt.Sprintf("code for %q is a prefix of another code", sym))
		}
		node.leaf = true
		node.symbol = sym
	}
	return root, nil
}

func bitIndex(c byte) (int, bool) {
	switch c {
	case '0':
		return 0, true
	case '1':
		return 1, true
	default:
		return 0, false
	}
}

// Decode reverses Encode using only the code table.
func Decode(encoded string, table CodeTable) (string, error) {
	if encoded == "" {
		return "", nil
	}
	root, err := buildTrie(table)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	node := root
	for i := 0; i < len(encoded); i++ {
		bit, ok := bitIndex(encoded[i])
		if !ok {
			return "", apperrors.NewInvalidEncodingError(i, fmt.Sprintf("unexpected character %q", encoded[i]))
		}
		node = node.children[bit]
		if node == nil {
			return "", apperrors.NewInvalidEncodingError(i, "no code matches")
		}
		if node.leaf {
			sb.WriteRune(node.symbol)
			node = root
		}
	}
	if node != root {
		return "", apperrors.NewInvalidEncodingError(len(encoded), "trailing bits do not form a code")
	}
	return sb.String(), nil
}

// Decode reverses Encode by walking the tree.
func (t *Tree) Decode(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	if t == nil || t.Root == nil {
		return "", apperrors.NewInvalidEncodingError(0, "empty tree")
	}

	var sb strings.Builder
	if t.Root.IsLeaf() {
		for i := 0; i < len(encoded); i++ {
			if encoded[i] != '0' {
				return "", apperrors.NewInvalidEncodingError(i, "single-symbol tree only accepts '0'")
			}
			sb.WriteRune(t.Root.Symbol)
		}
		return sb.String(), nil
	}

	node := t.Root
	for i := 0; i < len(encoded); i++ {
		switch encoded[i] {
		case '0':
			node = node.Left
		case '1':
			node = node.Right
		default:
			return "", apperrors.NewInvalidEncodingError(i, fmt.Sprintf("unexpected character %q", encoded[i]))
		}
		if node.IsLeaf() {
			sb.WriteRune(node.Symbol)
			node = t.Root
		}
	}
	if node != t.Root {
		return "", apperrors.NewInvalidEncodingError(len(encoded), "trailing bits do not form a code")
	}
	return sb.String(), nil
}

// IsPrefixFree reports whether no code of the table is a prefix of another.
func IsPrefixFree(table CodeTable) bool {
	_, err := buildTrie(table)
	return err == nil
}
