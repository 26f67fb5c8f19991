package metrics

import (
	"bytes"
	"os"
	"path/filepath"

	"codeberg.org/mutker/datafilter/internal/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "datafilter"

func ptr[T any](v T) *T {
	return &v
}

func counter(value uint64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label:   labels,
		Counter: &dto.Counter{Value: ptr(float64(value))},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

func gauge(value float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: ptr(value)}}
}

// Families converts a snapshot to Prometheus metric families.
func Families(snap *FilterSnapshot) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		family("readings_total", "Readings evaluated by the filter.", dto.MetricType_COUNTER,
			counter(snap.Total)),
		family("readings_accepted_total", "Readings accepted by the filter.", dto.MetricType_COUNTER,
			counter(snap.Accepted)),
		family("readings_rejected_total", "Readings rejected by the filter, by reason.", dto.MetricType_COUNTER,
			counter(snap.OutOfRange, label("reason", "out_of_range")),
			counter(snap.Spikes, label("reason", "spike_detected"))),
		family("decode_failures_total", "Records dropped because they could not be decoded.", dto.MetricType_COUNTER,
			counter(snap.DecodeFailures)),
		family("window_size", "Values currently held in the spike window.", dto.MetricType_GAUGE,
			gauge(float64(snap.WindowLen))),
		family("window_mean_celsius", "Mean of the spike window.", dto.MetricType_GAUGE,
			gauge(snap.WindowMean)),
		family("window_stddev_celsius", "Population standard deviation of the spike window.", dto.MetricType_GAUGE,
			gauge(snap.WindowStdDev)),
		family("last_snapshot_timestamp_seconds", "Unix time of the last snapshot.", dto.MetricType_GAUGE,
			gauge(float64(snap.Timestamp.UnixMilli())/1000)),
	}
}

// WriteTextfile writes snap in the Prometheus text format to path, for a
// node exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, snap *FilterSnapshot) error {
	errFactory := errors.New()

	if snap == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	var buf bytes.Buffer
	for _, mf := range Families(snap) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return errFactory.Wrap(ErrTextfileWrite, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrTextfileWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errFactory.Wrap(ErrTextfileWrite, err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(buf.Bytes())
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, defaultFilePerm)
	}
	if werr == nil {
		werr = os.Rename(tmpName, path)
	}
	if werr != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(ErrTextfileWrite, werr)
	}

	return nil
}
