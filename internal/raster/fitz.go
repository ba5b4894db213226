package raster

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// pdfBaseDPI is the PDF point resolution; the render scale multiplies it.
const pdfBaseDPI = 72

// FitzDecoder opens PDFs with MuPDF via go-fitz. This is the production
// decoder; tests substitute an in-memory one.
type FitzDecoder struct{}

var _ Decoder = FitzDecoder{}

func (FitzDecoder) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int { return d.doc.NumPage() }

func (d *fitzDocument) Render(page int, scale float64) (image.Image, error) {
	// go-fitz numbers pages from 0.
	img, err := d.doc.ImageDPI(page-1, pdfBaseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error { return d.doc.Close() }
