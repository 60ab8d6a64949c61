// Package cifar10 fetches and decodes the CIFAR-10 image classification data set.
//
// The binary version of the data set is downloaded on demand from the University of Toronto
// and verified against its published md5 sum. Each record in a batch file is one label byte
// followed by the 1024 red, 1024 green and 1024 blue values for a 32x32 image.
package cifar10

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/cyclopcam/logs"
)

const (
	Width    = 32
	Height   = 32
	Channels = 3

	TrainSize = 50000
	TestSize  = 10000
	ValidSize = 5000

	imageSize   = Width * Height
	recordBytes = imageSize*Channels + 1
)

// Classes are the category names in label order.
var Classes = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

var (
	ArchiveURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	ArchiveMD5 = "c32a1d4ab5d03f1284b67883e8d87530"
)

const (
	archiveName = "cifar-10-binary.tar.gz"
	batchDir    = "cifar-10-batches-bin"
	testBatch   = "test_batch.bin"
	trainCache  = "cifar10_train.gob"
	testCache   = "cifar10_test.gob"
)

var trainBatches = []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin"}

// Download fetches the archive into dir if it is missing or corrupt and unpacks the batch files.
func Download(ctx context.Context, log logs.Log, dir string) error {
	archive := filepath.Join(dir, archiveName)
	if err := checkMD5(archive, ArchiveMD5); err != nil {
		log.Infof("Downloading %s to %s", ArchiveURL, archive)
		if err := downloadFile(ctx, ArchiveURL, archive); err != nil {
			return fmt.Errorf("error downloading %s: %w", ArchiveURL, err)
		}
		if err := checkMD5(archive, ArchiveMD5); err != nil {
			return err
		}
	}
	if haveBatches(dir) {
		return nil
	}
	log.Infof("Extracting %s", archive)
	return extract(archive, dir)
}

func haveBatches(dir string) bool {
	for _, name := range append(trainBatches, testBatch) {
		if _, err := os.Stat(filepath.Join(dir, batchDir, name)); err != nil {
			return false
		}
	}
	return true
}

func checkMD5(file, sum string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return err
	}
	if got := fmt.Sprintf("%x", hash.Sum(nil)); got != sum {
		return fmt.Errorf("md5 mismatch for %s: got %s expected %s", file, got, sum)
	}
	return nil
}

func downloadFile(ctx context.Context, srcURL, targetFile string) (err error) {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tempFile)
		}
	}()
	if _, err = io.Copy(file, resp.Body); err != nil {
		file.Close()
		return err
	}
	if err = file.Close(); err != nil {
		return err
	}
	return os.Rename(tempFile, targetFile)
}

// extract the regular files from the gzipped tar archive into dir
func extract(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", archive, err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading %s: %w", archive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("invalid file name %q in %s", hdr.Name, archive)
		}
		if err := writeFile(filepath.Join(dir, name), tr); err != nil {
			return err
		}
	}
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReadBatch decodes a stream of binary image records. Pixel values are scaled to the range 0-1.
func ReadBatch(r io.Reader, classes []string) (*img.Data, error) {
	br := bufio.NewReader(r)
	labels := make([]int32, 0, 10000)
	images := make([]*img.Image, 0, 10000)
	buf := make([]byte, recordBytes)
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("incomplete record %d: expected %d bytes", len(labels), recordBytes)
		}
		if err != nil {
			return nil, err
		}
		if int(buf[0]) >= len(classes) {
			return nil, fmt.Errorf("record %d: label %d out of range", len(labels), buf[0])
		}
		labels = append(labels, int32(buf[0]))
		m := img.NewRGB(Width, Height)
		for j := 0; j < imageSize; j++ {
			for ch := 0; ch < Channels; ch++ {
				m.Pix[j*Channels+ch] = float32(buf[1+ch*imageSize+j]) / 255
			}
		}
		images = append(images, m)
	}
	return img.NewData(classes, labels, images)
}

// LoadBatch reads one batch file.
func LoadBatch(file string) (*img.Data, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := ReadBatch(f, Classes)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", file, err)
	}
	return d, nil
}

// Load returns the training and test sets, downloading the data if needed. The decoded sets are
// cached as gob files in dir so later runs skip the parsing step.
func Load(ctx context.Context, log logs.Log, dir string) (train, test *img.Data, err error) {
	train, errTrain := loadCache(filepath.Join(dir, trainCache))
	test, errTest := loadCache(filepath.Join(dir, testCache))
	if errTrain == nil && errTest == nil {
		log.Infof("Loaded %d training and %d test images from cache", train.Len(), test.Len())
		return train, test, nil
	}
	if err = Download(ctx, log, dir); err != nil {
		return nil, nil, err
	}
	for i, name := range trainBatches {
		d, err := LoadBatch(filepath.Join(dir, batchDir, name))
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("read %d images from %s", d.Len(), name)
		if i == 0 {
			train = d
		} else {
			train.Labels = append(train.Labels, d.Labels...)
			train.Images = append(train.Images, d.Images...)
		}
	}
	if test, err = LoadBatch(filepath.Join(dir, batchDir, testBatch)); err != nil {
		return nil, nil, err
	}
	if train.Len() != TrainSize || test.Len() != TestSize {
		return nil, nil, fmt.Errorf("expected %d training and %d test images, got %d and %d", TrainSize, TestSize, train.Len(), test.Len())
	}
	mean, std := img.GetStats(train.Images, test.Images)
	log.Infof("channel mean = %.3f stddev = %.3f", mean, std)
	train.Mean, train.StdDev = mean, std
	test.Mean, test.StdDev = mean, std

	if err := saveCache(filepath.Join(dir, trainCache), train); err != nil {
		log.Warnf("Unable to cache training data: %v", err)
	}
	if err := saveCache(filepath.Join(dir, testCache), test); err != nil {
		log.Warnf("Unable to cache test data: %v", err)
	}
	return train, test, nil
}

func loadCache(file string) (*img.Data, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := new(img.Data)
	return d, d.Decode(bufio.NewReader(f))
}

func saveCache(file string, d *img.Data) error {
	f, err := os.Create(file + ".tmp")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := d.Encode(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(file+".tmp", file)
}

// Split carves the last n examples off d as a validation set.
func Split(d *img.Data, n int) (train, valid *img.Data, err error) {
	if n < 0 || n > d.Len() {
		return nil, nil, fmt.Errorf("cannot split %d validation examples from a set of %d", n, d.Len())
	}
	k := d.Len() - n
	return d.Slice(0, k), d.Slice(k, d.Len()), nil
}
