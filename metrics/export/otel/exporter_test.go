package otel

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	authkit "github.com/tradeyard/authkit"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return s.snapshot }
func (s *fakeSource) AuditDropped() uint64                     { return s.dropped }

func TestNewExporterValidation(t *testing.T) {
	source := &fakeSource{}

	if _, err := NewExporterFromSource(nil, source); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporterFromSource(noop.NewMeterProvider().Meter("test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterRegistersAndCloses(t *testing.T) {
	source := &fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricLoginSuccess: 1,
			},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	}

	exporter, err := NewExporterFromSource(noop.NewMeterProvider().Meter("test"), source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
