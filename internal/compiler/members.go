package compiler

import (
	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// pointerMember maps a host member onto a glTF object-model pointer.
// The unit's "target" data pin feeds the template placeholder.
type pointerMember struct {
	owner, member string
	template      string
	placeholder   string
	sig           string
}

// Only local-space transform members are registered. World-space members
// (Transform.position, Transform.rotation) have no node-local pointer and
// fall through to an unmapped-unit diagnostic.
var pointerMembers = []pointerMember{
	{"Transform", "localPosition", "/nodes/{nodeIndex}/translation", "nodeIndex", ir.SigFloat3},
	{"Transform", "localRotation", "/nodes/{nodeIndex}/rotation", "nodeIndex", ir.SigFloat4},
	{"Transform", "localScale", "/nodes/{nodeIndex}/scale", "nodeIndex", ir.SigFloat3},
	{"Material", "color", "/materials/{materialIndex}/pbrMetallicRoughness/baseColorFactor", "materialIndex", ir.SigFloat4},
}

func registerMembers(b *RegistryBuilder) {
	for _, m := range pointerMembers {
		b.Member(KindGetMember, m.owner, m.member, m.exporter(schema.OpPointerGet, pins{
			valueOut: []string{schema.Value, "isValid"},
		}))
		b.Member(KindSetMember, m.owner, m.member, m.exporter(schema.OpPointerSet, pins{
			flowIn:  []string{schema.In},
			flowOut: []string{schema.Out, schema.Err},
			valueIn: []string{schema.Value},
		}))
		b.Member(KindInterpolateMember, m.owner, m.member, m.exporter(schema.OpPointerInterpolate, pins{
			flowIn:  []string{schema.In},
			flowOut: []string{schema.Out, schema.Done, schema.Err},
			valueIn: []string{schema.Value, "duration", "p1", "p2"},
		}))
	}

	b.Member(KindInvokeMember, "Animation", "Play", single(schema.OpAnimationStart, pins{
		flowIn:  []string{schema.In},
		flowOut: []string{schema.Out, schema.Done, schema.Err},
		valueIn: []string{"animation", "startTime", "endTime", "speed"},
	}, nil))
	b.Member(KindInvokeMember, "Animation", "Stop", single(schema.OpAnimationStop, pins{
		flowIn:  []string{schema.In},
		flowOut: []string{schema.Out, schema.Err},
		valueIn: []string{"animation"},
	}, nil))
}

func (m pointerMember) exporter(op string, p pins) Exporter {
	return single(op, p, func(ctx *Context, u *authoring.Unit, n int) error {
		ctx.SetConfig(n, "pointer", ir.String(m.template))
		ctx.SetConfig(n, "type", ir.String(m.sig))
		ctx.MapValueIn("target", n, m.placeholder)
		return nil
	})
}
