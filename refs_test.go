package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refClasses(t *testing.T) (*Instance, *Instance) {
	t.Helper()
	source := NewClass("Source", Declare("temp", Number(Default(20.0))))
	sink := NewClass("Sink", Declare("display", Number(Default(0.0), AllowRefs())))

	src, err := source.New(nil)
	require.NoError(t, err)
	dst, err := sink.New(nil)
	require.NoError(t, err)
	return src, dst
}

func TestRefBindAndSync(t *testing.T) {
	src, dst := refClasses(t)

	require.NoError(t, dst.Set("display", src.Ref("temp")))
	assert.Equal(t, 20.0, dst.MustGet("display"), "binding syncs the current value")

	require.NoError(t, src.Set("temp", 25.0))
	assert.Equal(t, 25.0, dst.MustGet("display"), "source changes propagate")

	_, bound := dst.BoundRef("display")
	assert.True(t, bound)
}

func TestPlainWriteUnbindsRef(t *testing.T) {
	src, dst := refClasses(t)

	require.NoError(t, dst.Set("display", src.Ref("temp")))
	require.NoError(t, dst.Set("display", 1.0))

	_, bound := dst.BoundRef("display")
	assert.False(t, bound, "a plain write severs the binding")

	require.NoError(t, src.Set("temp", 99.0))
	assert.Equal(t, 1.0, dst.MustGet("display"), "severed binding stops propagating")
}

func TestRefRequiresAllowRefs(t *testing.T) {
	source := NewClass("Source", Declare("temp", Number(Default(20.0))))
	plain := NewClass("Plain", Declare("x", Number(Default(0.0))))

	src, err := source.New(nil)
	require.NoError(t, err)
	in, err := plain.New(nil)
	require.NoError(t, err)

	// Without AllowRefs the Reference itself is treated as a candidate
	// value and fails Number validation.
	err = in.Set("x", src.Ref("temp"))
	assert.Error(t, err)
}

func TestComputedRef(t *testing.T) {
	src, dst := refClasses(t)

	doubled := Computed(func() any {
		return src.MustGet("temp").(float64) * 2
	}, src.Ref("temp"))

	require.NoError(t, dst.Set("display", doubled))
	assert.Equal(t, 40.0, dst.MustGet("display"))

	require.NoError(t, src.Set("temp", 30.0))
	assert.Equal(t, 60.0, dst.MustGet("display"))
}

func TestRefAdapter(t *testing.T) {
	type boxed struct{ v float64 }
	RegisterRefAdapter(func(v any) (Reference, bool) {
		b, ok := v.(*boxed)
		if !ok {
			return nil, false
		}
		return Computed(func() any { return b.v }), true
	})

	_, dst := refClasses(t)
	require.NoError(t, dst.Set("display", &boxed{v: 7.0}))
	assert.Equal(t, 7.0, dst.MustGet("display"))
}

func TestRefBindingAtConstruction(t *testing.T) {
	src, _ := refClasses(t)
	sink := NewClass("Sink2", Declare("display", Number(Default(0.0), AllowRefs())))

	dst, err := sink.New(Values{"display": src.Ref("temp")})
	require.NoError(t, err)
	assert.Equal(t, 20.0, dst.MustGet("display"))

	require.NoError(t, src.Set("temp", 21.0))
	assert.Equal(t, 21.0, dst.MustGet("display"))
}
