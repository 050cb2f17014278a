package tree

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNotFound  = errors.New("comment not found in tree")
	ErrDuplicate = errors.New("comment already in tree")
	ErrNilNode   = errors.New("nil comment node")
)

// ParentRef addresses where a reply goes: the root list or an existing comment.
type ParentRef struct {
	id   int64
	root bool
}

// Root is the sentinel parent for top-level comments.
var Root = ParentRef{root: true}

func Under(parentID int64) ParentRef {
	return ParentRef{id: parentID}
}

func (p ParentRef) IsRoot() bool {
	return p.root
}

func (p ParentRef) ID() int64 {
	return p.id
}

func (p ParentRef) String() string {
	if p.root {
		return "root"
	}
	return fmt.Sprint(p.id)
}

// Forest is the comment tree of one post. It is immutable: every With* method
// returns a new Forest that copies only the path to the changed node and
// shares all other subtrees with the receiver.
type Forest struct {
	roots []*Node
	size  int
}

func New() *Forest {
	return &Forest{}
}

// Roots returns the root sequence in order.
func (f *Forest) Roots() []*Node {
	return slices.Clone(f.roots)
}

// Len is the number of loaded nodes at any depth.
func (f *Forest) Len() int {
	return f.size
}

// Find looks the id up depth-first, parent before children.
func (f *Forest) Find(id int64) (*Node, bool) {
	path, ok := pathTo(f.roots, id)
	if !ok {
		return nil, false
	}
	return nodeAt(f.roots, path), true
}

// WithRoots replaces the whole forest with the given roots.
func (f *Forest) WithRoots(nodes []*Node) (*Forest, error) {
	next := &Forest{}
	return next.appendRoots(nodes, false)
}

// AppendRoots adds a further page of roots at the end. Roots whose id is
// already loaded are skipped.
func (f *Forest) AppendRoots(nodes []*Node) (*Forest, error) {
	return f.appendRoots(nodes, true)
}

func (f *Forest) appendRoots(nodes []*Node, skipKnown bool) (*Forest, error) {
	seen := f.ids()
	roots := slices.Clip(slices.Clone(f.roots))
	size := f.size
	for _, n := range nodes {
		if n == nil {
			return nil, ErrNilNode
		}
		ids := collectIDs(n, nil)
		if clash, ok := firstSeen(seen, ids); ok {
			if skipKnown && clash == n.ID {
				continue
			}
			return nil, fmt.Errorf("%w: %d", ErrDuplicate, clash)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
		roots = append(roots, n)
		size += len(ids)
	}
	return &Forest{roots: roots, size: size}, nil
}

// WithChildren stores the fetched children of a node. If the node already has
// loaded children (a local reply landed while the fetch was in flight) the
// local ones stay first and fetched ones not yet present are appended.
func (f *Forest) WithChildren(id int64, children []*Node) (*Forest, error) {
	path, ok := pathTo(f.roots, id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	seen := f.ids()
	added := make([]*Node, 0, len(children))
	size := f.size
	for _, c := range children {
		if c == nil {
			return nil, ErrNilNode
		}
		ids := collectIDs(c, nil)
		if clash, ok := firstSeen(seen, ids); ok {
			if clash == c.ID {
				continue
			}
			return nil, fmt.Errorf("%w: %d", ErrDuplicate, clash)
		}
		for _, cid := range ids {
			seen[cid] = struct{}{}
		}
		added = append(added, c)
		size += len(ids)
	}

	roots := rewrite(f.roots, path, func(n Node) Node {
		if n.Children.IsLoaded() {
			n.Children = Loaded(append(n.Children.Nodes(), added...)...)
		} else {
			n.Children = Loaded(added...)
		}
		return n
	})
	return &Forest{roots: roots, size: size}, nil
}

// WithReply prepends a freshly created comment to the root list or to the
// children of its parent. An unloaded parent becomes loaded with just the reply.
func (f *Forest) WithReply(parent ParentRef, reply *Node) (*Forest, error) {
	if reply == nil {
		return nil, ErrNilNode
	}
	seen := f.ids()
	ids := collectIDs(reply, nil)
	if clash, ok := firstSeen(seen, ids); ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicate, clash)
	}

	if parent.IsRoot() {
		roots := make([]*Node, 0, len(f.roots)+1)
		roots = append(roots, reply)
		roots = append(roots, f.roots...)
		return &Forest{roots: roots, size: f.size + len(ids)}, nil
	}

	path, ok := pathTo(f.roots, parent.ID())
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, parent.ID())
	}
	roots := rewrite(f.roots, path, func(n Node) Node {
		n.Children = Loaded(append([]*Node{reply}, n.Children.Nodes()...)...)
		return n
	})
	return &Forest{roots: roots, size: f.size + len(ids)}, nil
}

// WithVote overwrites the rating and the viewer's vote of one comment.
func (f *Forest) WithVote(id int64, sumRating int, vote Vote) (*Forest, error) {
	if !vote.Valid() {
		return nil, fmt.Errorf("invalid vote value %d", vote)
	}
	path, ok := pathTo(f.roots, id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	roots := rewrite(f.roots, path, func(n Node) Node {
		n.SumRating = sumRating
		n.UserVote = vote
		return n
	})
	return &Forest{roots: roots, size: f.size}, nil
}

// Walk visits loaded nodes depth-first, parent before children. Returning
// false from fn skips the node's children.
func (f *Forest) Walk(fn func(n *Node, depth int) bool) {
	walk(f.roots, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) && n.Children.IsLoaded() {
			walk(n.Children.nodes, depth+1, fn)
		}
	}
}

func (f *Forest) ids() map[int64]struct{} {
	seen := make(map[int64]struct{}, f.size)
	f.Walk(func(n *Node, _ int) bool {
		seen[n.ID] = struct{}{}
		return true
	})
	return seen
}

// pathTo returns the child indexes leading from nodes down to id.
func pathTo(nodes []*Node, id int64) ([]int, bool) {
	for i, n := range nodes {
		if n.ID == id {
			return []int{i}, true
		}
		if !n.Children.IsLoaded() {
			continue
		}
		if rest, ok := pathTo(n.Children.nodes, id); ok {
			return append([]int{i}, rest...), true
		}
	}
	return nil, false
}

func nodeAt(nodes []*Node, path []int) *Node {
	n := nodes[path[0]]
	for _, i := range path[1:] {
		n = n.Children.nodes[i]
	}
	return n
}

// rewrite copies the slice and the node at every step of path, applies fn to
// the last one and leaves every other pointer untouched.
func rewrite(nodes []*Node, path []int, fn func(Node) Node) []*Node {
	out := slices.Clone(nodes)
	cur := *nodes[path[0]]
	if len(path) == 1 {
		cur = fn(cur)
	} else {
		cur.Children = Children{loaded: true, nodes: rewrite(cur.Children.nodes, path[1:], fn)}
	}
	out[path[0]] = &cur
	return out
}

func collectIDs(n *Node, acc []int64) []int64 {
	acc = append(acc, n.ID)
	for _, c := range n.Children.nodes {
		acc = collectIDs(c, acc)
	}
	return acc
}

// firstSeen reports the first id already in seen or repeated within ids.
func firstSeen(seen map[int64]struct{}, ids []int64) (int64, bool) {
	local := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		if _, ok := local[id]; ok {
			return id, true
		}
		local[id] = struct{}{}
	}
	return 0, false
}
