package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tm2pc/txmanager/pkg/config"
)

type fakeBackpressured struct {
	factor float64
}

func (f *fakeBackpressured) SetBackpressure(factor float64) { f.factor = factor }

func TestSamplerApplyBelowThresholdLeavesBackpressureNormal(t *testing.T) {
	fb := &fakeBackpressured{}
	s := NewSampler(config.CapacityConfig{CPUThreshold: 85, MemThreshold: 90}, fb, nil)

	s.apply(Sample{CPUPercent: 10, MemPercent: 20})

	assert.Equal(t, 1.0, fb.factor)
}

func TestSamplerApplyAboveCPUThresholdDoublesBackpressure(t *testing.T) {
	fb := &fakeBackpressured{}
	s := NewSampler(config.CapacityConfig{CPUThreshold: 85, MemThreshold: 90}, fb, nil)

	s.apply(Sample{CPUPercent: 90, MemPercent: 20})

	assert.Equal(t, 2.0, fb.factor)
}

func TestSamplerApplyAboveMemThresholdDoublesBackpressure(t *testing.T) {
	fb := &fakeBackpressured{}
	s := NewSampler(config.CapacityConfig{CPUThreshold: 85, MemThreshold: 90}, fb, nil)

	s.apply(Sample{CPUPercent: 10, MemPercent: 95})

	assert.Equal(t, 2.0, fb.factor)
}
