package detection

import (
	"context"
	"image"
	"strings"

	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// Relabel renames detector classes before reduction, e.g. thread_external -> thread for
// models trained on the synthetic dataset. Keys match case-insensitively.
func Relabel(d client.Detector, mapping map[string]string) client.Detector {
	if len(mapping) == 0 {
		return d
	}
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return client.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
		regions, err := d.Detect(ctx, img)
		if err != nil {
			return nil, err
		}
		for i := range regions {
			if to, ok := m[strings.ToLower(strings.TrimSpace(regions[i].Label))]; ok {
				regions[i].Label = to
			}
		}
		return regions, nil
	})
}
