package labs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

type pageImage struct {
	name string
	data []byte
}

// pageImages returns the largest embedded image of every page that has one,
// keyed by 1-based page number. A scanned page is a single full-page image;
// smaller ones (logos, stamps) lose out to it.
func pageImages(data []byte) (images map[int][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf images: %v", r)
		}
	}()

	extracted, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("extracting page images: %w", err)
	}

	best := make(map[int]pageImage)
	for _, page := range extracted {
		for _, img := range page {
			b, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("reading image %s on page %d: %w", img.Name, img.PageNr, err)
			}
			cur, ok := best[img.PageNr]
			if !ok || len(b) > len(cur.data) || len(b) == len(cur.data) && img.Name < cur.name {
				best[img.PageNr] = pageImage{name: img.Name, data: b}
			}
		}
	}

	images = make(map[int][]byte, len(best))
	for nr, img := range best {
		images[nr] = img.data
	}
	return images, nil
}
