package dataset

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"tomoalign/internal/models"
)

// Dir returns the directory holding the persisted files of a dataset with
// the given resolution and sample count.
func Dir(root string, resolution, count int) string {
	return filepath.Join(root, fmt.Sprintf("misaligned_r%d_n%d", resolution, count))
}

// Basename returns the shared filename prefix for the dataset's samples.
func Basename(resolution, count int) string {
	return fmt.Sprintf("misaligned_r%d_n%d", resolution, count)
}

// SamplePath returns the file path of sample `index` within the dataset
// identified by resolution and count.
func SamplePath(root string, resolution, count, index int) string {
	return filepath.Join(Dir(root, resolution, count),
		fmt.Sprintf("%s_%d.gob", Basename(resolution, count), index))
}

// Save writes each sample to its own gob file, keyed by resolution, total
// count and index. Samples are encoded as explicit records (dimensions
// first, then data), so a file is self-describing and can be reloaded
// without external metadata. There is no atomicity: a crash mid-save
// leaves a partially populated directory.
func Save(ds models.Dataset, root string, resolution int) error {
	if err := os.MkdirAll(Dir(root, resolution, len(ds)), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %v", err)
	}

	for i, sample := range ds {
		path := SamplePath(root, resolution, len(ds), i)
		if err := writeSample(path, sample); err != nil {
			return fmt.Errorf("failed to write sample %d: %v", i, err)
		}
	}
	return nil
}

// Load reads every indexed sample file back in index order, reassembling a
// dataset shape-identical to the one that was saved.
func Load(root string, resolution, count int) (models.Dataset, error) {
	ds := make(models.Dataset, count)
	for i := 0; i < count; i++ {
		sample, err := readSample(SamplePath(root, resolution, count, i))
		if err != nil {
			return nil, fmt.Errorf("failed to read sample %d: %v", i, err)
		}
		ds[i] = sample
	}
	return ds, nil
}

func writeSample(path string, sample *models.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(sample)
}

func readSample(path string) (*models.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var sample models.Sample
	if err := gob.NewDecoder(file).Decode(&sample); err != nil {
		return nil, err
	}
	return &sample, nil
}
