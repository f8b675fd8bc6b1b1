package engine

import (
	"strconv"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/compiler"
	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// builder assembles small graphs node by node.
type builder struct {
	g *ir.Graph
}

func newBuilder() *builder {
	return &builder{g: &ir.Graph{}}
}

func (b *builder) node(op string, config map[string]ir.Value) int {
	d := b.g.Declare(ir.Declaration{Op: op})
	n := ir.NewNode(d)
	for k, v := range config {
		n.Configuration[k] = v
	}
	return b.g.AddNode(n)
}

func (b *builder) log(message string) int {
	return b.node(schema.OpLog, map[string]ir.Value{"message": ir.String(message)})
}

func (b *builder) flow(from int, out string, to int, in string) *builder {
	b.g.Nodes[from].Flows[out] = ir.SocketRef{Node: to, Socket: in}
	return b
}

func (b *builder) lit(node int, name string, v ir.Value) *builder {
	b.g.Nodes[node].Values[name] = ir.Lit(v)
	return b
}

func (b *builder) link(node int, name string, src int, socket string) *builder {
	b.g.Nodes[node].Values[name] = ir.Link(src, socket)
	return b
}

func (b *builder) variable(id, typ string, def ir.Value) int {
	b.g.Variables = append(b.g.Variables, ir.Variable{ID: id, Type: typ, Default: def})
	return len(b.g.Variables) - 1
}

func (b *builder) load(t *testing.T) *Program {
	t.Helper()
	p, err := Load(b.g, schema.Standard())
	require.NoError(t, err)
	return p
}

// compileYAML compiles an authoring graph and loads it.
func compileYAML(t *testing.T, src string) *Program {
	t.Helper()
	ag, err := authoring.ParseYAML([]byte(src))
	require.NoError(t, err)
	res, err := compiler.Default().Compile(ag)
	require.NoError(t, err)
	p, err := Load(res.Graph, schema.Standard())
	require.NoError(t, err)
	return p
}

// logs collects log sink output.
type logs struct {
	mu   sync.Mutex
	msgs []string
}

func (l *logs) Log(_ int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, message)
}

func (l *logs) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

type fixture struct {
	s     *Session
	clock *clock.Mock
	rec   *Recorder
	logs  *logs
	state *host.MemoryState
}

func newFixture(t *testing.T, p *Program, opts ...SessionOption) *fixture {
	t.Helper()
	f := &fixture{
		clock: clock.NewMock(),
		rec:   &Recorder{},
		logs:  &logs{},
		state: host.NewMemoryState(),
	}
	base := []SessionOption{
		WithClock(f.clock),
		WithObserver(f.rec),
		WithLogSink(f.logs),
		WithState(f.state),
		WithSessionID("test-session"),
		WithIDGenerator(&counterIDs{}),
	}
	f.s = p.NewSession(append(base, opts...)...)
	return f
}

// counterIDs generates c1, c2, ...
type counterIDs struct{ n int }

func (c *counterIDs) Generate() string {
	c.n++
	return "c" + strconv.Itoa(c.n)
}

