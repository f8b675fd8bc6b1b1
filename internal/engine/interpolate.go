package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// interpolation eases a float-kind value from one point to another over
// a duration.
type interpolation struct {
	sig      string
	from, to []float64
	target   ir.Value
	p1, p2   ir.Float2
	slerp    bool
	start    time.Time
	duration float64
}

func newInterpolation(from, to ir.Value, p1, p2 ir.Float2, slerp bool, start time.Time, duration float64) (*interpolation, error) {
	sig := to.Signature()
	if !ir.IsFloatKind(sig) {
		return nil, fmt.Errorf("cannot interpolate %s", sig)
	}
	c, ok := ir.Convert(from, sig)
	if !ok {
		return nil, fmt.Errorf("cannot interpolate from %s to %s", from.Signature(), sig)
	}
	a, _ := ir.Floats(c)
	b, _ := ir.Floats(to)
	return &interpolation{
		sig: sig, from: a, to: b, target: to,
		p1: p1, p2: p2,
		slerp: slerp && sig == ir.SigFloat4,
		start: start, duration: duration,
	}, nil
}

// at returns the value at time now and whether the end was reached. The
// final value is exactly the target.
func (ip *interpolation) at(now time.Time) (ir.Value, bool) {
	t := 1.0
	if ip.duration > 0 {
		t = now.Sub(ip.start).Seconds() / ip.duration
	}
	if t >= 1 {
		return ip.target, true
	}
	t = max(t, 0)
	e := cubicBezier(ip.p1, ip.p2, t)

	var out []float64
	if ip.slerp {
		out = slerp(ip.from, ip.to, e)
	} else {
		out = lerp(ip.from, ip.to, e)
	}
	v, err := ir.FloatsToValue(ip.sig, out)
	if err != nil {
		return ip.target, true
	}
	return v, false
}

func lerp(a, b []float64, t float64) []float64 {
	out := make([]float64, len(a))
	for k := range a {
		out[k] = a[k] + (b[k]-a[k])*t
	}
	return out
}

// slerp interpolates unit quaternions along the shorter arc.
func slerp(a, b []float64, t float64) []float64 {
	dot := 0.0
	for k := range a {
		dot += a[k] * b[k]
	}
	to := make([]float64, len(b))
	copy(to, b)
	if dot < 0 {
		for k := range to {
			to[k] = -to[k]
		}
		dot = -dot
	}
	if dot > 0.9995 {
		return normalize(lerp(a, to, t))
	}
	theta0 := math.Acos(dot)
	theta := theta0 * t
	sin0 := math.Sin(theta0)
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sin0
	s1 := math.Sin(theta) / sin0
	out := make([]float64, len(a))
	for k := range a {
		out[k] = s0*a[k] + s1*to[k]
	}
	return out
}

func normalize(v []float64) []float64 {
	n := 0.0
	for _, x := range v {
		n += x * x
	}
	n = math.Sqrt(n)
	if n == 0 {
		return v
	}
	for k := range v {
		v[k] /= n
	}
	return v
}

// cubicBezier evaluates the timing curve through (0,0), p1, p2, (1,1) at
// progress x, solving the curve for x first as CSS timing functions do.
func cubicBezier(p1, p2 ir.Float2, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	if p1[0] == p1[1] && p2[0] == p2[1] {
		return x
	}

	cx := 3 * p1[0]
	bx := 3*(p2[0]-p1[0]) - cx
	ax := 1 - cx - bx
	cy := 3 * p1[1]
	by := 3*(p2[1]-p1[1]) - cy
	ay := 1 - cy - by

	sampleX := func(s float64) float64 { return ((ax*s+bx)*s + cx) * s }
	sampleY := func(s float64) float64 { return ((ay*s+by)*s + cy) * s }
	slopeX := func(s float64) float64 { return (3*ax*s+2*bx)*s + cx }

	const eps = 1e-12
	s := x
	for range 8 {
		d := sampleX(s) - x
		if math.Abs(d) < eps {
			return sampleY(s)
		}
		slope := slopeX(s)
		if math.Abs(slope) < 1e-9 {
			break
		}
		s -= d / slope
	}

	lo, hi := 0.0, 1.0
	s = x
	for range 100 {
		v := sampleX(s)
		if math.Abs(v-x) < eps {
			break
		}
		if x > v {
			lo = s
		} else {
			hi = s
		}
		s = (lo + hi) / 2
	}
	return sampleY(s)
}

func validControlPoint(p ir.Float2) bool {
	for _, c := range p {
		if math.IsNaN(c) || c < 0 || c > 1 {
			return false
		}
	}
	return true
}

// easing reads and checks the duration and control point inputs shared
// by the interpolate ops.
func (s *Session) easing(i int) (float64, ir.Float2, ir.Float2, error) {
	d, _ := s.input(i, "duration").(ir.Float)
	p1, _ := s.input(i, "p1").(ir.Float2)
	p2, _ := s.input(i, "p2").(ir.Float2)
	if !validDuration(float64(d)) {
		return 0, p1, p2, fmt.Errorf("invalid duration %v", float64(d))
	}
	if !validControlPoint(p1) || !validControlPoint(p2) {
		return 0, p1, p2, errors.New("control points must lie in [0,1]")
	}
	return float64(d), p1, p2, nil
}

func variableKey(idx int) string { return "variable:" + strconv.Itoa(idx) }

// variableInterpolate fires out at once, then eases the variable toward
// the target every tick and fires done at the end.
func (s *Session) variableInterpolate(i int) error {
	idx, ok := s.prog.variableIndex(i)
	if !ok {
		return s.fail(i, errors.New("no variable configured"))
	}
	def := s.prog.graph.Variables[idx]
	target, ok := ir.Convert(s.input(i, schema.Value), def.Type)
	if !ok || !ir.IsFloatKind(def.Type) {
		return s.fail(i, fmt.Errorf("variable %s of type %s cannot be interpolated", def.ID, def.Type))
	}
	d, p1, p2, err := s.easing(i)
	if err != nil {
		return s.fail(i, err)
	}
	slerpOn, _ := s.config(i, "useSlerp").(ir.Bool)

	if err := s.fire(i, schema.Out); err != nil {
		return err
	}

	ip, err := newInterpolation(s.vars[idx], target, p1, p2, bool(slerpOn), s.clock.Now(), d)
	if err != nil {
		return s.fail(i, err)
	}
	s.schedule(i, variableKey(idx), "interpolate "+def.ID, func(c *continuation) (bool, error) {
		v, finished := ip.at(c.now)
		if err := s.setVariable(i, idx, v); err != nil {
			return false, err
		}
		return finished, nil
	}, func() error {
		return s.fire(i, schema.Done)
	})
	return nil
}

// pointerInterpolate eases a pointer target like variableInterpolate. A
// later pointer/set on the same path cancels it.
func (s *Session) pointerInterpolate(i int) error {
	path, sig, err := s.resolvePointer(i)
	if err != nil {
		return s.fail(i, err)
	}
	target, ok := ir.Convert(s.input(i, schema.Value), sig)
	if !ok || !ir.IsFloatKind(sig) {
		return s.fail(i, fmt.Errorf("pointer %s of type %s cannot be interpolated", path, sig))
	}
	d, p1, p2, err := s.easing(i)
	if err != nil {
		return s.fail(i, err)
	}
	from, err := s.state.Get(path)
	if err != nil {
		return s.fail(i, err)
	}

	if err := s.fire(i, schema.Out); err != nil {
		return err
	}

	ip, err := newInterpolation(from, target, p1, p2, false, s.clock.Now(), d)
	if err != nil {
		return s.fail(i, err)
	}
	s.schedule(i, pointerKey(path), "interpolate "+path, func(c *continuation) (bool, error) {
		v, finished := ip.at(c.now)
		if err := s.state.Set(path, v); err != nil {
			return false, err
		}
		return finished, nil
	}, func() error {
		return s.fire(i, schema.Done)
	})
	return nil
}
