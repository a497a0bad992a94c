package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeMonitor struct {
	errs    []error
	panics  []any
	tags    []map[string]string
	flushed int
}

func (f *fakeMonitor) CaptureException(err error, tags map[string]string) {
	f.errs = append(f.errs, err)
	f.tags = append(f.tags, tags)
}

func (f *fakeMonitor) CapturePanic(v any, tags map[string]string) {
	f.panics = append(f.panics, v)
	f.tags = append(f.tags, tags)
}

func (f *fakeMonitor) Flush(time.Duration) { f.flushed++ }

func TestCaptureException(t *testing.T) {
	fm := &fakeMonitor{}
	Init(fm)
	t.Cleanup(Reset)

	CaptureException(nil, nil)
	CaptureException(errors.New("infeasible"), map[string]string{"run_id": "r1"})
	Flush(time.Second)

	assert.Len(t, fm.errs, 1)
	assert.Equal(t, "r1", fm.tags[0]["run_id"])
	assert.Equal(t, 1, fm.flushed)
}

func TestRecoverAndReport(t *testing.T) {
	fm := &fakeMonitor{}
	Init(fm)
	t.Cleanup(Reset)

	assert.PanicsWithValue(t, "boom", func() {
		defer RecoverAndReport(map[string]string{"stage": "solve"})
		panic("boom")
	})
	assert.Equal(t, []any{"boom"}, fm.panics)
	assert.Equal(t, 1, fm.flushed)
}

func TestInitIgnoresNil(t *testing.T) {
	Init(nil)
	t.Cleanup(Reset)
	CaptureException(errors.New("x"), nil)
}
