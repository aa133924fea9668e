package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// OCR recognizes the text of one rendered PDF page.
type OCR interface {
	RecognizePage(ctx context.Context, pdf []byte, page int) (string, error)
}

// CommandOCR renders a page with pdftoppm and recognizes it with tesseract.
type CommandOCR struct {
	PdftoppmPath  string
	TesseractPath string
	DPI           int
	Language      string
}

// NewCommandOCR returns a CommandOCR with binaries resolved from PATH when paths are empty.
func NewCommandOCR(pdftoppmPath, tesseractPath string, dpi int) *CommandOCR {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &CommandOCR{
		PdftoppmPath:  pdftoppmPath,
		TesseractPath: tesseractPath,
		DPI:           dpi,
		Language:      "eng",
	}
}

// Available reports whether both binaries can be found.
func (c *CommandOCR) Available() error {
	for _, bin := range []string{c.PdftoppmPath, c.TesseractPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("ocr binary %q not found: %w", bin, err)
		}
	}
	return nil
}

// RecognizePage implements OCR.
func (c *CommandOCR) RecognizePage(ctx context.Context, pdf []byte, page int) (string, error) {
	dir, err := os.MkdirTemp("", "blueprint-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0600); err != nil {
		return "", fmt.Errorf("failed to write ocr input: %w", err)
	}
	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	render := exec.CommandContext(ctx, c.PdftoppmPath,
		"-r", strconv.Itoa(c.DPI), "-f", n, "-l", n, "-singlefile", "-png", input, prefix)
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to render page %d: %w: %s", page, err, strings.TrimSpace(string(out)))
	}

	args := []string{prefix + ".png", "stdout"}
	if c.Language != "" {
		args = append(args, "-l", c.Language)
	}
	var stdout, stderr bytes.Buffer
	recognize := exec.CommandContext(ctx, c.TesseractPath, args...)
	recognize.Stdout = &stdout
	recognize.Stderr = &stderr
	if err := recognize.Run(); err != nil {
		return "", fmt.Errorf("failed to recognize page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
