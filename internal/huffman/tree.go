// Package huffman builds prefix codes over a document's raw characters.
//
// Tree construction is the classic greedy merge. The priority queue orders
// nodes by (frequency, insertion sequence): leaves are inserted in the order
// their symbol first appears in the content and every merged node receives
// the next sequence number. The first node popped becomes the left child,
// so the same content always produces the same tree and codes.
package huffman

import "container/heap"

// SymbolFreq is one row of a frequency table.
type SymbolFreq struct {
	Symbol rune
	Freq   int
}

// Node is a node of a Huffman tree. Leaves have no children.
type Node struct {
	Symbol rune
	Freq   int
	Left   *Node
	Right  *Node
	seq    int
}

// IsLeaf reports whether the node carries a symbol.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Tree is an ephemeral Huffman tree. The zero value (nil Root) is the tree of empty content.
type Tree struct {
	Root *Node
}

// nodeQueue implements heap.Interface ordered by (Freq, seq).
type nodeQueue []*Node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].Freq != q[j].Freq {
		return q[i].Freq < q[j].Freq
	}
	return q[i].seq < q[j].seq
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*Node)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return node
}

// FrequencyTable counts every character of content, in first-seen order.
func FrequencyTable(content string) []SymbolFreq {
	index := make(map[rune]int)
	table := make([]SymbolFreq, 0)
	for _, r := range content {
		if i, ok := index[r]; ok {
			table[i].Freq++
			continue
		}
		index[r] = len(table)
		table = append(table, SymbolFreq{Symbol: r, Freq: 1})
	}
	return table
}

// BuildTree merges the two lowest-frequency nodes until one root remains.
func BuildTree(table []SymbolFreq) *Tree {
	if len(table) == 0 {
		return &Tree{}
	}

	q := make(nodeQueue, 0, len(table))
	seq := 0
	for _, sf := range table {
		q = append(q, &Node{Symbol: sf.Symbol, Freq: sf.Freq, seq: seq})
		seq++
	}
	heap.Init(&q)

	for q.Len() > 1 {
		left := heap.Pop(&q).(*Node)
		right := heap.Pop(&q).(*Node)
		heap.Push(&q, &Node{
			Freq:  left.Freq + right.Freq,
			Left:  left,
			Right: right,
			seq:   seq,
		})
		seq++
	}

	return &Tree{Root: heap.Pop(&q).(*Node)}
}

// Codes walks the tree assigning "0" to left and "1" to right branches.
// A tree with a single leaf assigns "0" to its only symbol.
func (t *Tree) Codes() CodeTable {
	codes := make(CodeTable)
	if t == nil || t.Root == nil {
		return codes
	}
	if t.Root.IsLeaf() {
		codes[t.Root.Symbol] = "0"
		return codes
	}
	var walk func(n *Node, prefix string)
	walk = func(n *Node, prefix string) {
		if n.IsLeaf() {
			codes[n.Symbol] = prefix
			return
		}
		walk(n.Left, prefix+"0")
		walk(n.Right, prefix+"1")
	}
	walk(t.Root, "")
	return codes
}
