package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Dataset names of the holography container.
const (
	FirstKey         = "UnixTimestampFirst"
	LastKey          = "UnixTimestampLast"
	DefaultSignalKey = "SignalsArterialVelocity_y"
)

type options struct {
	signalKey string
}

// Option configures Load.
type Option func(*options)

// WithSignalKey selects the dataset holding the secondary signal.
func WithSignalKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.signalKey = strings.TrimPrefix(key, "/")
		}
	}
}

// HDF5ExportHint tells users how to turn an HDF5 acquisition into a container
// Load accepts.
const HDF5ExportHint = "export UnixTimestampFirst, UnixTimestampLast and the signal dataset " +
	"to a JSON object (for example h5dump -j -d /UnixTimestampFirst ...) and pass that file instead"

// Load reads a reference series container from path. JSON and YAML
// containers are supported.
func Load(path string, opts ...Option) (*models.ReferenceSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: reference file %s", models.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("reading reference file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".yaml", ".yml":
	case ".h5", ".hdf5":
		return nil, fmt.Errorf("%w: reference %s: HDF5 containers are not read directly; %s", models.ErrMalformedRecord, path, HDF5ExportHint)
	default:
		return nil, fmt.Errorf("reference %s: unsupported container extension %q", path, ext)
	}

	ref, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", path, err)
	}
	ref.Source = path
	return ref, nil
}

// Parse decodes a JSON or YAML container.
func Parse(data []byte, opts ...Option) (*models.ReferenceSeries, error) {
	o := options{signalKey: DefaultSignalKey}
	for _, opt := range opts {
		opt(&o)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing container: %v", models.ErrMalformedRecord, err)
	}
	doc = normalizeKeys(doc)

	first, err := scalar(doc, FirstKey)
	if err != nil {
		return nil, err
	}
	last, err := scalar(doc, LastKey)
	if err != nil {
		return nil, err
	}

	ref := &models.ReferenceSeries{
		BoundaryFirst: first,
		BoundaryLast:  last,
	}

	// the secondary signal is optional; anything unreadable counts as absent
	if raw, ok := doc[o.signalKey]; ok {
		if sig, err := numbers(raw); err == nil && len(sig) > 0 {
			ref.Signal = sig
		}
	}

	return ref, nil
}

// normalizeKeys strips the leading "/" HDF5 exports put on dataset paths.
func normalizeKeys(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[strings.TrimPrefix(k, "/")] = v
	}
	return out
}

// scalar reads a boundary that may be stored as a number or an array; the
// first element of an array is used.
func scalar(doc map[string]any, key string) (float64, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: %s not found", models.ErrMalformedRecord, key)
	}
	vals, err := numbers(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", models.ErrMalformedRecord, key, err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", models.ErrMalformedRecord, key)
	}
	return vals[0], nil
}

// numbers flattens a scalar or a (possibly nested, 1-wide) array of numbers.
func numbers(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case int:
		return []float64{float64(v)}, nil
	case int64:
		return []float64{float64(v)}, nil
	case uint64:
		return []float64{float64(v)}, nil
	case float64:
		return []float64{v}, nil
	case []any:
		out := make([]float64, 0, len(v))
		for i, item := range v {
			inner, err := numbers(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			if len(inner) != 1 {
				return nil, fmt.Errorf("element %d is not a scalar", i)
			}
			out = append(out, inner[0])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", raw)
	}
}
