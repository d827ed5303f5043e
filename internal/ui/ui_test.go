package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kiplm/kiplm/internal/catalog/builder"
)

func TestMain(m *testing.M) {
	DisableColor()
	m.Run()
}

func TestRender_NoColor(t *testing.T) {
	assert.Equal(t, "OK", RenderPass("OK"))
	assert.Equal(t, "FAIL", RenderFail("FAIL"))
	assert.Equal(t, "⚠", RenderWarn("⚠"))
	assert.Equal(t, "x", RenderAccent("x"))
}

func TestPrintReport(t *testing.T) {
	report := &builder.Report{
		Full: true,
		Steps: []builder.Step{
			{Kind: builder.StepDropped, Target: "OLD"},
			{Kind: builder.StepUpdated, Target: "RES", Rows: 3},
			{Kind: builder.StepUpdated, Target: "CAP", Err: errors.New("disk full")},
			{Kind: builder.StepDescriptor, Target: "KiPLM.kicad_dbl"},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)

	assert.Equal(t, "Dropping table OLD... OK\n"+
		"Updating table RES... OK\n"+
		"Updating table CAP... FAIL\n"+
		"   disk full\n"+
		"Writing KiPLM.kicad_dbl... OK\n", buf.String())
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &builder.Report{Duration: 1500 * time.Microsecond})
	assert.Equal(t, "✓ Build complete in 2ms\n", buf.String())

	buf.Reset()
	PrintSummary(&buf, &builder.Report{Steps: []builder.Step{{Kind: builder.StepRead, Target: "CAP", Err: errors.New("bad")}}})
	assert.Equal(t, "✗ Build finished with 1 failed step(s)\n", buf.String())

	buf.Reset()
	PrintSummary(&buf, nil)
	PrintReport(&buf, nil)
	assert.Empty(t, buf.String())
}
