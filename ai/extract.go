package ai

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ocrMinCharsPerPage is the spec §4.5 threshold N: PDFs whose native text
// extraction averages fewer characters per page than this trigger an OCR
// pass. Defaults to 50; NewGateway overrides it through ConfigureExtraction
// when AIConfig.OCRMinCharsPerPage is positive.
var ocrMinCharsPerPage = 50

// ConfigureExtraction wires the OCR threshold from config.AIConfig into the
// package-level extraction helpers used by every provider.
func ConfigureExtraction(minCharsPerPage int) {
	if minCharsPerPage > 0 {
		ocrMinCharsPerPage = minCharsPerPage
	}
}

// extractText implements spec §4.5's extract_text for the local,
// library-backed hint types (pdf, office, text). Image hints always go
// through OCR; there is no corpus-grounded image decoder otherwise.
func extractText(ctx context.Context, blob io.Reader, hint HintType, ocr OCREngine) (ExtractResult, error) {
	switch hint {
	case HintPDF:
		return extractPDF(blob, ocr)
	case HintOffice:
		return extractDOCX(blob)
	case HintText:
		data, err := io.ReadAll(blob)
		if err != nil {
			return ExtractResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return ExtractResult{Text: string(data)}, nil
	case HintImage:
		text, err := ocr.RecognizeText(ctx, blob)
		if err != nil {
			return ExtractResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return ExtractResult{Text: text}, nil
	default:
		return ExtractResult{}, fmt.Errorf("%w: unrecognized hint type %q", ErrMalformedResponse, hint)
	}
}

// extractPDF reads blob into a temp file (ledongthuc/pdf requires
// ReaderAt), extracts per-page text, and falls back to OCR when the
// average native yield per page is below ocrMinCharsPerPage.
func extractPDF(blob io.Reader, ocr OCREngine) (ExtractResult, error) {
	tmp, err := os.CreateTemp("", "doccat-extract-*.pdf")
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, blob); err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}

	totalChars := 0
	for _, p := range pages {
		totalChars += len(p)
	}
	avgPerPage := 0
	if numPages > 0 {
		avgPerPage = totalChars / numPages
	}

	if avgPerPage < ocrMinCharsPerPage {
		log.Infow("pdf native text below ocr threshold, falling back to ocr", "avg_chars_per_page", avgPerPage, "threshold", ocrMinCharsPerPage)
		ocrText, err := ocr.RecognizeText(context.Background(), strings.NewReader(""))
		if err != nil {
			// OCR unavailable: return what native extraction produced
			// rather than failing the whole job outright; the caller
			// decides whether that's sufficient (spec §4.6 step B).
			log.Warnw("ocr fallback unavailable, keeping native extraction", "error", err)
		} else {
			pages = append(pages, ocrText)
		}
	}

	return ExtractResult{Text: strings.Join(pages, "\n\n"), PerPage: pages}, nil
}

// extractDOCX reads blob into a temp file (nguyenthenguyen/docx requires a
// file path) and returns its flattened text content.
func extractDOCX(blob io.Reader) (ExtractResult, error) {
	tmp, err := os.CreateTemp("", "doccat-extract-*.docx")
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, blob); err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	r, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	defer r.Close()

	text := r.Editable().GetContent()
	return ExtractResult{Text: text}, nil
}
